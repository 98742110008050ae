package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the background status refresher. All methods are nil-safe
// so tests can pass a nil receiver.
type Metrics struct {
	refreshes     *prometheus.CounterVec
	sweepDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		refreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "heimdall_membership_refreshes_total",
			Help: "Per-member status refresh attempts by outcome.",
		}, []string{"outcome"}),
		sweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "heimdall_membership_sweep_duration_seconds",
			Help:    "Duration of full refresh sweeps over all members.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSweep(seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
}
