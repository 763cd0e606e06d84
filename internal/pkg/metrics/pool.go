package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PoolMetrics struct {
	PoolSize             *prometheus.GaugeVec
	UnhealthyEndpoints   *prometheus.GaugeVec
	RequestsTotal        *prometheus.CounterVec
	FailuresTotal        *prometheus.CounterVec
	RateLimitedTotal     *prometheus.CounterVec
	HealsTotal           *prometheus.CounterVec
	EmergencyResetsTotal *prometheus.CounterVec
}

var (
	poolOnce sync.Once
	pool     *PoolMetrics
)

func Pool() *PoolMetrics {
	poolOnce.Do(func() {
		r := Registerer()
		pool = &PoolMetrics{
			PoolSize: promauto.With(r).NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "rpc_pool_endpoints",
					Help: "configured endpoints per pool and transport kind",
				},
				[]string{"pool", "kind"},
			),
			UnhealthyEndpoints: promauto.With(r).NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "rpc_pool_unhealthy_endpoints",
					Help: "endpoints currently latched unhealthy per pool",
				},
				[]string{"pool"},
			),
			RequestsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "rpc_pool_requests_total",
					Help: "rpc attempts issued through the manager per pool",
				},
				[]string{"pool"},
			),
			FailuresTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "rpc_pool_failures_total",
					Help: "failed rpc attempts per pool",
				},
				[]string{"pool"},
			),
			RateLimitedTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "rpc_pool_rate_limited_total",
					Help: "requests rejected by the sliding-window rate budget per pool",
				},
				[]string{"pool"},
			),
			HealsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "rpc_pool_heals_total",
					Help: "endpoints restored by self-heal probes per pool",
				},
				[]string{"pool"},
			),
			EmergencyResetsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "rpc_pool_emergency_resets_total",
					Help: "wholesale health resets triggered by a fully unhealthy pool",
				},
				[]string{"pool"},
			),
		}
	})
	return pool
}
