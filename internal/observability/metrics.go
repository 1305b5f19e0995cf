package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments covering queue depth, pool
// occupancy, and run outcomes (spec.md's scheduling and JobRunner
// subsystems, SPEC_FULL.md DOMAIN STACK).
type Metrics struct {
	QueueDepth     *prometheus.GaugeVec
	PoolOccupancy  *prometheus.GaugeVec
	RunOutcomes    *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	registry       *prometheus.Registry
}

// NewMetrics registers a fresh set of instruments on a dedicated registry,
// so repeated calls (e.g. in tests) never collide with a package-level
// default registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		QueueDepth: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "evobench_run",
			Name:      "queue_depth",
			Help:      "Number of jobs currently queued, by queue name.",
		}, []string{"queue"}),

		PoolOccupancy: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "evobench_run",
			Name:      "pool_occupancy",
			Help:      "Number of working directory pool entries, by status.",
		}, []string{"status"}),

		RunOutcomes: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: "evobench_run",
			Name:      "run_outcomes_total",
			Help:      "Total job runs, by outcome (success, error).",
		}, []string{"outcome"}),

		RunDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Namespace: "evobench_run",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of one Runner.RunJob call.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),

		registry: registry,
	}

	return m
}

// Handler returns an http.Handler serving the Prometheus exposition format
// for this Metrics instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
