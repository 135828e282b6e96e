// Package metrics defines the Prometheus collectors for the bulk load service
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/TruckRewards/internal/core"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RecordsTotal         *prometheus.CounterVec
	SessionsTotal        *prometheus.CounterVec
	SessionDuration      *prometheus.HistogramVec
	ActiveSessions       prometheus.GaugeFunc

	gatherer prometheus.Gatherer
}

var _ core.Recorder = (*Metrics)(nil)

// New creates the collectors and registers them on reg. A nil reg uses a
// fresh registry. active reports the limiter's in-use slots; it may be nil.
func New(reg *prometheus.Registry, active func() int) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if active == nil {
		active = func() int { return 0 }
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkload_records_total",
				Help: "Bulk load records processed by mode, record type, and status.",
			},
			[]string{"mode", "record_type", "status"},
		),
		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkload_sessions_total",
				Help: "Bulk load sessions by mode and result (completed, failed, rejected).",
			},
			[]string{"mode", "result"},
		),
		SessionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bulkload_session_duration_seconds",
				Help:    "Bulk load session duration in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"mode"},
		),
	}
	m.ActiveSessions = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "bulkload_active_sessions",
			Help: "Bulk load sessions currently holding a limiter slot.",
		},
		func() float64 { return float64(active()) },
	)

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RecordsTotal,
		m.SessionsTotal,
		m.SessionDuration,
		m.ActiveSessions,
	)
	m.gatherer = reg

	return m
}

// ObserveRecord counts one processed record.
func (m *Metrics) ObserveRecord(mode core.Mode, tag, status string) {
	m.RecordsTotal.WithLabelValues(string(mode), recordLabel(tag), status).Inc()
}

// ObserveSession counts a finished session and its duration. Rejected
// sessions never ran, so their duration is not observed.
func (m *Metrics) ObserveSession(mode core.Mode, result string, duration time.Duration) {
	m.SessionsTotal.WithLabelValues(string(mode), result).Inc()
	if result != core.SessionResultRejected {
		m.SessionDuration.WithLabelValues(string(mode)).Observe(duration.Seconds())
	}
}

// recordLabel bounds label cardinality: unknown tags collapse to "other".
func recordLabel(tag string) string {
	switch tag {
	case core.TagOrganization, core.TagSponsor, core.TagDriver:
		return tag
	default:
		return "other"
	}
}

// Handler returns the Prometheus scrape HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records HTTP request count, latency, and in-flight gauge.
// Routes are labelled by their chi pattern so path values do not explode
// cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := routePattern(r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
