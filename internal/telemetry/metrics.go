package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run kinds used as the "kind" label.
const (
	KindSimulate = "simulate"
	KindTornado  = "tornado"
	KindStress   = "stress"
	KindSweep    = "sweep"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	PathsSimulated   prometheus.Counter
	CacheLookups     *prometheus.CounterVec
	AppetiteBreaches prometheus.Counter
	RunErrors        *prometheus.CounterVec
}

// NewMetrics creates collectors registered on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lossim_runs_total",
				Help: "Total number of analysis runs",
			},
			[]string{"kind"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lossim_run_duration_seconds",
				Help:    "Analysis run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"kind"},
		),
		PathsSimulated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lossim_paths_simulated_total",
			Help: "Total Monte Carlo paths simulated",
		}),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lossim_cache_lookups_total",
				Help: "Run report cache lookups by result",
			},
			[]string{"result"},
		),
		AppetiteBreaches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lossim_appetite_breaches_total",
			Help: "Runs assessed as outside risk appetite",
		}),
		RunErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lossim_run_errors_total",
				Help: "Analysis runs that failed, by kind",
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.PathsSimulated,
		m.CacheLookups,
		m.AppetiteBreaches,
		m.RunErrors,
	)
	return m
}

// ObserveRun records a successful run of the given kind.
func (m *Metrics) ObserveRun(kind string, started time.Time) {
	m.RunsTotal.WithLabelValues(kind).Inc()
	m.RunDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
