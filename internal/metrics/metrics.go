// Package metrics provides Prometheus instrumentation for the portfolio
// engine.
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
	// TradesAppended counts trades appended to wallet ledgers.
	TradesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfolio_trades_appended_total",
		Help: "Trades appended to wallet ledgers",
	}, []string{"wallet", "action"})

	// TradesRejected counts trade records rejected before reaching a
	// ledger, partitioned by rejection reason.
	TradesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfolio_trades_rejected_total",
		Help: "Trade records rejected during validation or append",
	}, []string{"reason"})

	// IngestCycles counts bot ingestion cycles by outcome.
	IngestCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfolio_ingest_cycles_total",
		Help: "Bot ingestion cycles",
	}, []string{"bot", "status"})

	// IngestDuration tracks how long one bot's ingestion cycle takes,
	// including the source fetch.
	IngestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botfolio_ingest_duration_seconds",
		Help:    "Duration of bot ingestion cycles in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"bot"})

	// RegisteredWallets tracks the number of wallets in the portfolio.
	RegisteredWallets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botfolio_wallets",
		Help: "Number of registered wallets",
	})

	// WebSocketClients tracks connected dashboard WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botfolio_websocket_clients",
		Help: "Number of connected dashboard clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfolio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botfolio_http_request_duration_seconds",
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

		// Use the raw path for the label; route cardinality is small.
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
