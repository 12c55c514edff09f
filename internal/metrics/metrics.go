// Package metrics provides Prometheus metrics for the signal service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for govpulse.
type Metrics struct {
	SourceFetchesTotal *prometheus.CounterVec
	SourceDuration     *prometheus.HistogramVec
	StarvationTotal    prometheus.Counter
	ReportsTotal       *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SourceFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govpulse_source_fetches_total",
				Help: "Settled signal source fetches by source and result.",
			},
			[]string{"source", "result"},
		),
		SourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "govpulse_source_fetch_duration_seconds",
				Help:    "Signal source fetch duration by source.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		StarvationTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "govpulse_signal_starvation_total",
				Help: "Loads in which no signal source could be read.",
			},
		),
		ReportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govpulse_reports_total",
				Help: "Signal reports built by surface and outcome.",
			},
			[]string{"surface", "outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govpulse_http_requests_total",
				Help: "HTTP requests by method and status code.",
			},
			[]string{"method", "code"},
		),
		registry: reg,
	}

	reg.MustRegister(m.SourceFetchesTotal)
	reg.MustRegister(m.SourceDuration)
	reg.MustRegister(m.StarvationTotal)
	reg.MustRegister(m.ReportsTotal)
	reg.MustRegister(m.HTTPRequestsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one settled source fetch.
func (m *Metrics) ObserveFetch(source string, ok bool, d time.Duration) {
	result := "error"
	if ok {
		result = "ok"
	}
	m.SourceFetchesTotal.WithLabelValues(source, result).Inc()
	m.SourceDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveStarvation records a load in which every source failed.
func (m *Metrics) ObserveStarvation() {
	m.StarvationTotal.Inc()
}

// RecordReport increments the report counter.
func (m *Metrics) RecordReport(surface, outcome string) {
	m.ReportsTotal.WithLabelValues(surface, outcome).Inc()
}

// RecordHTTP increments the HTTP request counter.
func (m *Metrics) RecordHTTP(method, code string) {
	m.HTTPRequestsTotal.WithLabelValues(method, code).Inc()
}
