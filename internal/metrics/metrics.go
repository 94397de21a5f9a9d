// Package metrics exposes Prometheus collectors for the bridge service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	invocationsTotal           *prometheus.CounterVec
	invocationDurationSeconds  *prometheus.HistogramVec
	invocationsInflight        prometheus.Gauge
	batchItems                 prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 5, 30, 60, 120},
			},
			[]string{"method", "route"},
		)

		invocationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_worker_invocations_total",
				Help: "Total worker invocations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		invocationDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_worker_invocation_duration_seconds",
				Help:    "Wall time per worker invocation, labeled by outcome.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"outcome"},
		)

		invocationsInflight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_worker_invocations_inflight",
				Help: "Number of worker processes currently running.",
			},
		)

		batchItems = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bridge_batch_items",
				Help:    "Number of items per submitted batch.",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveInvocation records one finished worker invocation.
func ObserveInvocation(outcome string, duration time.Duration) {
	invocationsTotal.WithLabelValues(outcome).Inc()
	invocationDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveBatch records the size of a validated batch.
func ObserveBatch(items int) {
	batchItems.Observe(float64(items))
}

// IncInflight increments the in-flight invocation gauge.
func IncInflight() {
	invocationsInflight.Inc()
}

// DecInflight decrements the in-flight invocation gauge.
func DecInflight() {
	invocationsInflight.Dec()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
