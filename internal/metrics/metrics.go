package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vestflow_build_info",
			Help: "Build information of the vestflow service",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vestflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vestflow_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vestflow_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Commit pipeline metrics
	CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vestflow_membership_commits_total",
			Help: "Total number of membership commit attempts",
		},
		[]string{"result"}, // "created", "noop", "failed"
	)

	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vestflow_dynamic_sync_runs_total",
			Help: "Total number of dynamic pool reconciliation runs",
		},
		[]string{"status"},
	)

	EscrowCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vestflow_escrow_calls_total",
			Help: "Total number of escrow provider calls",
		},
		[]string{"op", "status"},
	)

	// Treasury metrics
	TreasuryStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vestflow_treasury_status",
			Help: "Treasury solvency status (0=healthy, 1=warning, 2=critical)",
		},
	)

	TreasuryBuffer = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vestflow_treasury_buffer_tokens",
			Help: "Treasury balance minus outstanding allocations, in human units",
		},
	)
)

// Middleware instruments HTTP requests with request count, duration, and
// in-flight gauges. Route patterns, not raw paths, keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
