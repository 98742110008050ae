package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the resolution hot path. Nil-safe so tests can pass nil.
type Metrics struct {
	resolutions *prometheus.CounterVec
	duration    prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "heimdall_access_resolutions_total",
			Help: "Access resolutions by decision and reason.",
		}, []string{"decision", "reason"}),
		duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "heimdall_access_resolution_duration_seconds",
			Help: "Time from tag presentation to verdict.",
			// The resolve deadline sits in the hundreds of milliseconds;
			// buckets need resolution below it.
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}
}

func (m *Metrics) IncResolution(decision, reason string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(decision, reason).Inc()
}

func (m *Metrics) ObserveDuration(seconds float64) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
}
