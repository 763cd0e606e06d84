package http

import (
	"github.com/gofiber/fiber/v3"

	"github.com/blockpulse/chainwatch-rpc-service/internal/adapter/monitor"
	"github.com/blockpulse/chainwatch-rpc-service/internal/adapter/poll"
	"github.com/blockpulse/chainwatch-rpc-service/internal/adapter/rpcpool"
)

// Sources aggregates the components exposed over the control surface.
type Sources struct {
	Pools    []*rpcpool.Manager
	Monitors []*monitor.ChainMonitor
	Poller   *poll.AdaptivePoller
}

type statsResponse struct {
	Pools    []rpcpool.Stats  `json:"pools"`
	Monitors []monitor.Status `json:"monitors"`
	Poller   *poll.Stats      `json:"poller,omitempty"`
}

// Stats reports aggregated endpoint health, monitor states, and the current
// poller profile for external dashboards.
func Stats(src Sources) fiber.Handler {
	return func(ctx fiber.Ctx) error {
		resp := statsResponse{}
		for _, p := range src.Pools {
			resp.Pools = append(resp.Pools, p.Stats())
		}
		for _, m := range src.Monitors {
			resp.Monitors = append(resp.Monitors, m.Status())
		}
		if src.Poller != nil {
			s := src.Poller.Stats()
			resp.Poller = &s
		}
		return ctx.JSON(resp)
	}
}

// ForceHeal runs a synchronous self-heal sweep over every pool and returns
// the refreshed stats.
func ForceHeal(src Sources) fiber.Handler {
	return func(ctx fiber.Ctx) error {
		for _, p := range src.Pools {
			p.ForceHealAll(ctx.Context())
		}
		return Stats(src)(ctx)
	}
}
