// Package metrics exposes prometheus counters for the injector service
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metric names.
const (
	MetricInjectionsTotal       = "schemainjector_injections_total"
	MetricUpstreamFetchesTotal  = "schemainjector_upstream_fetches_total"
	MetricUpstreamFetchDuration = "schemainjector_upstream_fetch_duration_seconds"
)

// Metrics holds the service collectors on a private registry.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Metrics struct {
	registry *prometheus.Registry

	injections    *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		injections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricInjectionsTotal,
			Help: "Product pages processed, by outcome",
		}, []string{"outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricUpstreamFetchesTotal,
			Help: "Upstream page fetches, by mode and result",
		}, []string{"mode", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricUpstreamFetchDuration,
			Help:    "Upstream page fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
	}

	m.registry.MustRegister(
		m.injections,
		m.fetches,
		m.fetchDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveInjection counts one processed page. A nil Metrics is a no-op.
func (m *Metrics) ObserveInjection(outcome string) {
	if m == nil {
		return
	}
	m.injections.WithLabelValues(outcome).Inc()
}

// ObserveFetch records one upstream fetch
func (m *Metrics) ObserveFetch(mode string, err error, took time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(mode, result).Inc()
	m.fetchDuration.WithLabelValues(mode).Observe(took.Seconds())
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
