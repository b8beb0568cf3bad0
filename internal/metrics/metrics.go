// Package metrics exposes Prometheus counters for migration runs and
// rollbacks on a dedicated registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "data_migrations"

// Collector implements runner.Metrics.
type Collector struct {
	registry *prometheus.Registry

	Runs        *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	Rollbacks   *prometheus.CounterVec
	LastRun     *prometheus.GaugeVec
}

// New creates a Collector with its own Prometheus registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Migration invocations by outcome (completed, failed, skipped, dry_run)",
		}, []string{"migration", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of executed migrations in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"migration"}),
		Rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Rollback requests by outcome (completed, failed, rejected, dry_run)",
		}, []string{"migration", "outcome"}),
		LastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished invocation of each migration",
		}, []string{"migration"}),
	}

	reg.MustRegister(c.Runs, c.RunDuration, c.Rollbacks, c.LastRun)

	return c
}

// ObserveRun records the outcome of one Run. Skipped runs are counted but
// not timed.
func (c *Collector) ObserveRun(name, outcome string, duration time.Duration) {
	c.Runs.WithLabelValues(name, outcome).Inc()

	if outcome == "skipped" {
		return
	}

	c.RunDuration.WithLabelValues(name).Observe(duration.Seconds())
	c.LastRun.WithLabelValues(name).SetToCurrentTime()
}

// ObserveRollback records the outcome of one Rollback.
func (c *Collector) ObserveRollback(name, outcome string) {
	c.Rollbacks.WithLabelValues(name, outcome).Inc()
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
