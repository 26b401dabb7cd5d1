// Package metrics holds process-wide Prometheus metrics and the scrape handler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP-level Prometheus metrics for the application.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	RateLimited     *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatline_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status class",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatline_rate_limited_total",
			Help: "Requests rejected by the per-user rate limiter",
		}, []string{"route"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chatline_circuit_open",
			Help: "1 when the named circuit breaker is open",
		}, []string{"breaker"}),
	}
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	m.RequestDuration.WithLabelValues(route, status).Observe(seconds)
}

func (m *Metrics) IncrementRateLimited(route string) {
	m.RateLimited.WithLabelValues(route).Inc()
}

// SetBreakerOpen flips the breaker gauge.
func (m *Metrics) SetBreakerOpen(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerState.WithLabelValues(name).Set(v)
}

// Latency records request duration by matched chi route pattern and status class.
func (m *Metrics) Latency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.ObserveRequest(route, strconv.Itoa(status/100)+"xx", time.Since(start).Seconds())
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
