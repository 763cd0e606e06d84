package infra

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/blockpulse/chainwatch-rpc-service/internal/adapter/monitor"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/event"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/port"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/applog"
)

// InitMonitor constructs one chain's block monitor wired to its provider
// source and the shared interval source.
func InitMonitor(log applog.AppLogger, bus *event.Bus, wg *sync.WaitGroup, chain ChainConfig, providers port.ProviderSource, intervals port.IntervalSource, v *validator.Validate) (*monitor.ChainMonitor, error) {
	if v == nil {
		v = validator.New()
	}
	if wg == nil {
		wg = &sync.WaitGroup{}
	}

	cfg := monitor.Config{
		ChainID:               chain.ID,
		ChainName:             chain.Name,
		BlockTimeMS:           chain.BlockTimeMS,
		MaxReconnectAttempts:  viper.GetInt("monitor.max_reconnect_attempts"),
		ReconnectBaseDelayMS:  viper.GetInt("monitor.reconnect_base_delay_ms"),
		ReconnectMaxDelayMS:   viper.GetInt("monitor.reconnect_max_delay_ms"),
		DefaultPollIntervalMS: viper.GetInt("monitor.default_poll_interval_ms"),
		DialTimeoutMS:         viper.GetInt("monitor.dial_timeout_ms"),
	}

	m, err := monitor.NewChainMonitor(log, bus, wg, providers, intervals, cfg, v)
	if err != nil {
		return nil, fmt.Errorf("infra: failed to init monitor for %s: %w", chain.Name, err)
	}
	return m, nil
}
