package port

import (
	"context"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
)

// BlockEventPublisher forwards normalized new-block events to an external
// sink (Kafka topic, Redis stream) for downstream consumers.
type BlockEventPublisher interface {
	PublishBlockEvent(ctx context.Context, ev entity.BlockEvent) error
	Close()
}
