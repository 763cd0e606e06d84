package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MonitorMetrics struct {
	BlocksTotal     *prometheus.CounterVec
	DuplicatesTotal *prometheus.CounterVec
	Connected       *prometheus.GaugeVec
	ReconnectsTotal *prometheus.CounterVec
	FatalTotal      *prometheus.CounterVec
	PollCyclesTotal *prometheus.CounterVec
}

var (
	monitorOnce sync.Once
	monitor     *MonitorMetrics
)

func Monitor() *MonitorMetrics {
	monitorOnce.Do(func() {
		r := Registerer()
		monitor = &MonitorMetrics{
			BlocksTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "monitor_blocks_total",
					Help: "unique new-block events emitted per chain and ingestion mode",
				},
				[]string{"chain", "mode"},
			),
			DuplicatesTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "monitor_duplicate_blocks_total",
					Help: "duplicate or out-of-order block notifications dropped per chain",
				},
				[]string{"chain"},
			),
			Connected: promauto.With(r).NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "monitor_connected",
					Help: "monitor connectivity per chain (1=subscribed or polling, 0=down)",
				},
				[]string{"chain"},
			),
			ReconnectsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "monitor_reconnects_total",
					Help: "reconnect attempts per chain and reason",
				},
				[]string{"chain", "reason"},
			),
			FatalTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "monitor_fatal_total",
					Help: "fatal monitor halts after reconnect exhaustion per chain",
				},
				[]string{"chain"},
			),
			PollCyclesTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "monitor_poll_cycles_total",
					Help: "HTTP polling cycles executed per chain",
				},
				[]string{"chain"},
			),
		}
	})
	return monitor
}
