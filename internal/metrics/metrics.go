// Package metrics exposes Prometheus instrumentation for reconciliation
// runs: node outcomes by kind and per-node provider call durations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the reconciler's Prometheus collectors.
type Metrics struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates and registers the collectors. Pass prometheus.DefaultRegisterer
// outside tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gcevm",
			Name:      "node_outcomes_total",
			Help:      "Reconciliation node outcomes by resource kind.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gcevm",
			Name:      "node_duration_seconds",
			Help:      "Wall time spent reconciling one node.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"kind"}),
	}
	reg.MustRegister(m.outcomes, m.duration)
	return m
}

// Observe records one node's terminal outcome and duration.
func (m *Metrics) Observe(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind, outcome).Inc()
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
