package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PollerMetrics struct {
	IntervalMS         *prometheus.GaugeVec
	IntervalChanges    prometheus.Counter
	OpportunitiesTotal prometheus.Counter
	BurstsTotal        prometheus.Counter
	ModeChangesTotal   *prometheus.CounterVec
}

var (
	pollerOnce sync.Once
	poller     *PollerMetrics
)

func Poller() *PollerMetrics {
	pollerOnce.Do(func() {
		r := Registerer()
		poller = &PollerMetrics{
			IntervalMS: promauto.With(r).NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "poller_interval_ms",
					Help: "current recommended polling interval per chain (ms)",
				},
				[]string{"chain"},
			),
			IntervalChanges: promauto.With(r).NewCounter(prometheus.CounterOpts{
				Name: "poller_interval_changes_total",
				Help: "material polling interval recomputations",
			}),
			OpportunitiesTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
				Name: "poller_opportunities_total",
				Help: "opportunity events recorded",
			}),
			BurstsTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
				Name: "poller_opportunity_bursts_total",
				Help: "opportunity bursts that forced aggressive mode",
			}),
			ModeChangesTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "poller_mode_changes_total",
					Help: "intensity mode transitions by new mode",
				},
				[]string{"mode"},
			),
		}
	})
	return poller
}
