package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the service's Prometheus collectors. Each Server owns its own registry.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	SubmissionsTotal *prometheus.CounterVec
	ResolveErrors    *prometheus.CounterVec
	FloodRejections  *prometheus.CounterVec
}

func newMetrics(registry *prometheus.Registry, conflicts func() float64) *Metrics {
	metrics := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raveview_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "raveview_http_request_duration_seconds",
				Help:    "Time spent serving HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raveview_submissions_total",
				Help: "Total number of set submissions by outcome",
			},
			[]string{"outcome"},
		),
		ResolveErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raveview_resolve_errors_total",
				Help: "Total number of failed metadata resolutions by error kind",
			},
			[]string{"kind"},
		),
		FloodRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raveview_flood_rejections_total",
				Help: "Total number of requests rejected by flood control",
			},
			[]string{"action"},
		),
	}

	registry.MustRegister(
		metrics.RequestsTotal,
		metrics.RequestDuration,
		metrics.SubmissionsTotal,
		metrics.ResolveErrors,
		metrics.FloodRejections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if conflicts != nil {
		registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "raveview_catalog_conflicts_total",
				Help: "Total number of concurrent duplicate inserts resolved by re-reading",
			},
			conflicts,
		))
	}

	return metrics
}

func (m *Metrics) recordRequest(route string, code int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(route, statusLabel(code)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) recordSubmission(outcome string) {
	m.SubmissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordResolveError(kind string) {
	m.ResolveErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) recordFloodRejection(action string) {
	m.FloodRejections.WithLabelValues(action).Inc()
}
