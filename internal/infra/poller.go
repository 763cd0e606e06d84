package infra

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/blockpulse/chainwatch-rpc-service/internal/adapter/poll"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/event"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/applog"
)

// InitPoller constructs the shared adaptive poller seeded with every
// configured chain's block time.
func InitPoller(log applog.AppLogger, bus *event.Bus, chains []ChainConfig, v *validator.Validate) (*poll.AdaptivePoller, error) {
	if v == nil {
		v = validator.New()
	}

	cfg := poll.Config{
		MinIntervalMS:       viper.GetInt("poller.min_interval_ms"),
		MaxIntervalMS:       viper.GetInt("poller.max_interval_ms"),
		DefaultIntervalMS:   viper.GetInt("poller.default_interval_ms"),
		WindowSize:          viper.GetInt("poller.window_size"),
		MinSamples:          viper.GetInt("poller.min_samples"),
		LowVolatility:       viper.GetFloat64("poller.low_volatility"),
		MediumVolatility:    viper.GetFloat64("poller.medium_volatility"),
		HighVolatility:      viper.GetFloat64("poller.high_volatility"),
		OpportunityWindowMS: viper.GetInt("poller.opportunity_window_ms"),
		BurstThreshold:      viper.GetInt("poller.burst_threshold"),
		MaxRPCPerMinute:     viper.GetInt("poller.max_rpc_per_minute"),
		MaterialChangeRatio: viper.GetFloat64("poller.material_change_ratio"),
	}

	ents := make([]entity.Chain, 0, len(chains))
	for _, c := range chains {
		ents = append(ents, c.Entity())
	}

	p, err := poll.NewAdaptivePoller(log, bus, ents, cfg, v)
	if err != nil {
		return nil, fmt.Errorf("infra: failed to init adaptive poller: %w", err)
	}
	return p, nil
}
