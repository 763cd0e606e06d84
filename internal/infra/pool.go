package infra

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/blockpulse/chainwatch-rpc-service/internal/adapter/rpcpool"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/event"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/applog"
)

// InitPool constructs one chain's endpoint manager from the shared `pool`
// tuning keys plus the chain's own URL lists.
func InitPool(log applog.AppLogger, bus *event.Bus, wg *sync.WaitGroup, chain ChainConfig, v *validator.Validate) (*rpcpool.Manager, error) {
	if v == nil {
		v = validator.New()
	}
	if wg == nil {
		wg = &sync.WaitGroup{}
	}

	cfg := rpcpool.Config{
		HTTPURLs:                chain.HTTPURLs,
		WSURLs:                  chain.WSURLs,
		PremiumURLs:             chain.PremiumURLs,
		FailureThreshold:        viper.GetInt("pool.failure_threshold"),
		RequestsPerMinute:       viper.GetInt("pool.requests_per_minute"),
		GlobalRequestsPerMinute: viper.GetInt("pool.global_requests_per_minute"),
		SelfHealIntervalMS:      viper.GetInt("pool.self_heal_interval_ms"),
		MinRecoveryTimeMS:       viper.GetInt("pool.min_recovery_time_ms"),
		DisableEmergencyReset:   viper.GetBool("pool.disable_emergency_reset"),
		RetryMaxAttempts:        viper.GetInt("pool.retry_max_attempts"),
		RetryBackoffMS:          viper.GetInt("pool.retry_backoff_ms"),
		RequestTimeoutMS:        viper.GetInt("pool.request_timeout_ms"),
		GasPriceTTLMS:           viper.GetInt("pool.gas_price_ttl_ms"),
	}

	m, err := rpcpool.NewManager(log, bus, wg, chain.Name, cfg, v)
	if err != nil {
		return nil, fmt.Errorf("infra: failed to init rpc pool for %s: %w", chain.Name, err)
	}
	return m, nil
}
