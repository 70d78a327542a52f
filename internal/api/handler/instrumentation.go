package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	aegisRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	aegisRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aegis_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	aegisUpstreamFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_upstream_fetches_total",
		Help: "Intelligence feed fetches by outcome.",
	}, []string{"result"})

	aegisSnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_snapshots_total",
		Help: "Metrics snapshots served by data source.",
	}, []string{"source"})

	aegisFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_fallbacks_total",
		Help: "Requests answered with fixed fallback content after a panic.",
	}, []string{"route"})

	aegisIPDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_ip_decisions_total",
		Help: "IP check verdicts by decision.",
	}, []string{"decision"})

	aegisKeyRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aegis_key_rotations_total",
		Help: "Total X25519 key rotations.",
	})

	aegisHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_health_checks_total",
		Help: "Upstream health probes by upstream and result.",
	}, []string{"upstream", "result"})

	aegisRateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter.",
	}, []string{"path"})

	aegisUpstreamUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aegis_upstream_up",
		Help: "1 if the last probe of the upstream succeeded.",
	}, []string{"upstream"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		aegisRequestsTotal.WithLabelValues(method, path, status).Inc()
		aegisRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordFetch records an intelligence feed fetch outcome.
func RecordFetch(result string) {
	aegisUpstreamFetchesTotal.WithLabelValues(result).Inc()
}

// RecordDecision records an IP check verdict.
func RecordDecision(decision string) {
	aegisIPDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordKeyRotation records a key rotation.
func RecordKeyRotation() {
	aegisKeyRotationsTotal.Inc()
}

// RecordHealthCheck records an upstream probe result.
func RecordHealthCheck(upstream string, up bool) {
	if up {
		aegisHealthChecksTotal.WithLabelValues(upstream, "success").Inc()
		aegisUpstreamUp.WithLabelValues(upstream).Set(1)
	} else {
		aegisHealthChecksTotal.WithLabelValues(upstream, "failure").Inc()
		aegisUpstreamUp.WithLabelValues(upstream).Set(0)
	}
}

func recordSnapshot(source string) {
	aegisSnapshotsTotal.WithLabelValues(source).Inc()
}

func recordFallback(route string) {
	aegisFallbacksTotal.WithLabelValues(route).Inc()
}
