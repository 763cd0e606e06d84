package infra

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/blockpulse/chainwatch-rpc-service/internal/adapter/store"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/port"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/applog"
)

// InitBlockStream wires the Redis stream sink when `redis.enabled` is set;
// returns nil otherwise.
func InitBlockStream(logger applog.AppLogger, v *validator.Validate) (port.BlockEventPublisher, error) {
	if !viper.GetBool("redis.enabled") {
		return nil, nil
	}
	if v == nil {
		v = validator.New()
	}

	cfg := store.Config{
		Host:               viper.GetString("redis.host"),
		Port:               viper.GetString("redis.port"),
		Password:           viper.GetString("redis.password"),
		DB:                 viper.GetInt("redis.db"),
		UseTLS:             viper.GetBool("redis.use_tls"),
		PoolSize:           viper.GetInt("redis.pool_size"),
		MaxRetries:         viper.GetInt("redis.max_retries"),
		DialTimeoutSeconds: viper.GetInt("redis.dial_timeout_seconds"),
		StreamKey:          viper.GetString("redis.stream_key"),
		MaxStreamLen:       viper.GetInt64("redis.max_stream_len"),
	}

	bs, err := store.NewBlockStream(logger, cfg, v)
	if err != nil {
		return nil, fmt.Errorf("infra: failed to init block stream: %w", err)
	}
	return bs, nil
}
