package infra

import (
	"time"

	"github.com/spf13/viper"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/apperr"
)

// ChainConfig is one monitored chain as declared under the `chains` key.
type ChainConfig struct {
	ID          uint64   `mapstructure:"id"`
	Name        string   `mapstructure:"name"`
	BlockTimeMS int      `mapstructure:"block_time_ms"`
	HTTPURLs    []string `mapstructure:"http_urls"`
	WSURLs      []string `mapstructure:"ws_urls"`
	PremiumURLs []string `mapstructure:"premium_urls"`
}

// LoadChains reads the configured chain list. At least one chain is required;
// a monitoring agent with nothing to monitor is a configuration error.
func LoadChains() ([]ChainConfig, error) {
	var chains []ChainConfig
	if err := viper.UnmarshalKey("chains", &chains); err != nil {
		return nil, apperr.NewInvalidArgErr("failed to decode chains config", err)
	}
	if len(chains) == 0 {
		return nil, apperr.NewInvalidArgErr("no chains configured", nil)
	}
	return chains, nil
}

// Entity maps the config onto the core chain descriptor.
func (c ChainConfig) Entity() entity.Chain {
	return entity.Chain{
		ID:        c.ID,
		Name:      c.Name,
		BlockTime: time.Duration(c.BlockTimeMS) * time.Millisecond,
	}
}
