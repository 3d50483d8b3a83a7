package build

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for bundling. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	buildsTotal   *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	cacheRequests *prometheus.CounterVec
	cacheEntries  prometheus.Gauge
}

// NewMetrics creates the bundling collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		buildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tsxbridge_builds_total",
				Help: "Total number of esbuild invocations",
			},
			[]string{"component", "status"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tsxbridge_build_duration_seconds",
				Help:    "esbuild invocation latency in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"component"},
		),
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tsxbridge_bundle_cache_requests_total",
				Help: "Bundle cache lookups by result",
			},
			[]string{"result"},
		),
		cacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tsxbridge_bundle_cache_entries",
				Help: "Current number of cached bundles",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.buildsTotal, m.buildDuration, m.cacheRequests, m.cacheEntries)
	}
	return m
}

// ObserveBuild records one esbuild run.
func (m *Metrics) ObserveBuild(component string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.buildsTotal.WithLabelValues(component, status).Inc()
	m.buildDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// ObserveCache records a cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// SetCacheEntries updates the cache size gauge.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}
