package port

import (
	"context"
	"math/big"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
)

// EndpointOperation runs one RPC attempt against the selected endpoint.
type EndpointOperation func(ctx context.Context, ep entity.Endpoint) error

// ProviderSource hands out healthy, rate-budget-respecting endpoints and owns
// all health/rate bookkeeping. It is the single writer for endpoint health;
// callers report outcomes only through MarkHealthy/MarkUnhealthy or WithRetry.
type ProviderSource interface {
	// HTTPEndpoint selects the next usable HTTP endpoint. It never fails on
	// a uniformly unhealthy pool (emergency reset); it fails only when the
	// pool is empty.
	HTTPEndpoint() (entity.Endpoint, error)

	// WSEndpoint selects the next usable WebSocket endpoint. ok is false when
	// no WebSocket endpoint is usable, signaling the caller to fall back to
	// HTTP polling.
	WSEndpoint() (entity.Endpoint, bool)

	// CanMakeRequest atomically checks and consumes one unit of the
	// endpoint's and the global rate budget.
	CanMakeRequest(ep entity.Endpoint) bool

	MarkHealthy(ep entity.Endpoint)
	MarkUnhealthy(ep entity.Endpoint)

	// WithRetry runs op against a freshly selected HTTP endpoint, marking
	// failing endpoints unhealthy and rotating to a different one between
	// attempts. The last error is surfaced when attempts are exhausted.
	WithRetry(ctx context.Context, op EndpointOperation) error

	// GasPrice returns a short-TTL cached fee estimate.
	GasPrice(ctx context.Context) (*big.Int, error)

	// ForceHealAll runs a synchronous self-heal sweep over unhealthy endpoints.
	ForceHealAll(ctx context.Context)
}
