package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wudi/mdgate/internal/middleware"
)

// promMetrics holds the Prometheus collectors for the main listener. A
// per-server registry keeps tests free of duplicate-registration panics.
type promMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	factory := promauto.With(reg)
	return &promMetrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mdgate_requests_total",
			Help: "Total number of requests handled by the main listener.",
		}, []string{"method", "status"}),
		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mdgate_request_duration_seconds",
			Help:    "Request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// instrument returns a middleware that records request counts and durations.
func (m *promMetrics) instrument() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &metricsWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			m.requestsTotal.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
			m.requestDuration.Observe(time.Since(start).Seconds())
		})
	}
}

type metricsWriter struct {
	http.ResponseWriter
	status int
}

func (w *metricsWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
