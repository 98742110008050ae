package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the audit pipeline. Nil-safe so tests can pass nil.
type Metrics struct {
	appended prometheus.Counter
	dropped  prometheus.Counter
	failed   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		appended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "heimdall_audit_events_appended_total",
			Help: "Access events durably recorded.",
		}),
		dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "heimdall_audit_events_dropped_total",
			Help: "Access events dropped because the audit buffer was full.",
		}),
		failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "heimdall_audit_append_failures_total",
			Help: "Sink append attempts that returned an error.",
		}),
	}
}

func (m *Metrics) IncAppended() {
	if m == nil {
		return
	}
	m.appended.Inc()
}

func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) IncFailed() {
	if m == nil {
		return
	}
	m.failed.Inc()
}
