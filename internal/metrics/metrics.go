// Package metrics provides Prometheus instrumentation for the paper
// trading engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersExecuted counts complex orders executed, by spread type.
	OrdersExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdesk_orders_executed_total",
		Help: "Total number of complex orders executed",
	}, []string{"spread_type"})

	// OrderLegs counts individual legs filled, by side.
	OrderLegs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdesk_order_legs_total",
		Help: "Total number of order legs filled",
	}, []string{"side"})

	// OrderRejections counts rejected orders, by error code.
	OrderRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdesk_order_rejections_total",
		Help: "Complex orders rejected before execution",
	}, []string{"code"})

	// OrderLatency tracks end-to-end execution latency per spread type.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paperdesk_order_latency_seconds",
		Help:    "Complex order execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"spread_type"})

	// AccountEquity tracks the latest settled total equity per account.
	AccountEquity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "paperdesk_account_equity",
		Help: "Latest settled total equity per paper account",
	}, []string{"account"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paperdesk_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdesk_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paperdesk_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route shapes here are fixed
		// and low-cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
