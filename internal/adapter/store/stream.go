package store

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/apperr"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/applog"
	imetrics "github.com/blockpulse/chainwatch-rpc-service/internal/pkg/metrics"
)

// BlockStream appends normalized new-block events to a capped Redis stream
// for consumers that tail Redis instead of Kafka. Stream entries carry the
// chain id, block number, and receipt timestamp as flat fields.
type BlockStream struct {
	rdb *redis.Client
	log applog.AppLogger
	cfg Config
}

// NewBlockStream validates the Config, constructs a Redis client with
// optional TLS, and returns an initialized BlockStream.
func NewBlockStream(log applog.AppLogger, cfg Config, v *validator.Validate) (*BlockStream, error) {
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid redis config", "err", err)
		return nil, apperr.NewInvalidArgErr("invalid redis config", err)
	}

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	opts := &redis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: time.Duration(cfg.DialTimeoutSeconds) * time.Second,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &BlockStream{
		rdb: redis.NewClient(opts),
		log: log,
		cfg: cfg,
	}, nil
}

// PublishBlockEvent appends the event to the stream, trimming approximately
// to MaxStreamLen when configured.
func (bs *BlockStream) PublishBlockEvent(ctx context.Context, ev entity.BlockEvent) error {
	args := &redis.XAddArgs{
		Stream: bs.cfg.StreamKey,
		Values: map[string]any{
			"chainId":     strconv.FormatUint(ev.ChainID, 10),
			"blockNumber": strconv.FormatUint(ev.Number, 10),
			"timestamp":   ev.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	}
	if bs.cfg.MaxStreamLen > 0 {
		args.MaxLen = bs.cfg.MaxStreamLen
		args.Approx = true
	}

	id, err := bs.rdb.XAdd(ctx, args).Result()
	if err != nil {
		imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentRedis, "xadd").Inc()
		bs.log.Error("failed to append block event to stream", "stream", bs.cfg.StreamKey, "chain", ev.ChainID, "number", ev.Number, "err", err)
		return apperr.NewBlockStreamErr("failed to append block event to stream", err)
	}

	bs.log.Trace("appended block event to stream", "stream", bs.cfg.StreamKey, "id", id, "chain", ev.ChainID, "number", ev.Number)
	return nil
}

// Close releases the Redis client.
func (bs *BlockStream) Close() {
	if err := bs.rdb.Close(); err != nil {
		bs.log.Warn("failed to close redis client", "err", err)
	}
}
