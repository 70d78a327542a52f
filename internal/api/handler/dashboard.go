package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/QuantumAegis/internal/intel"
	"github.com/jmerrifield20/QuantumAegis/internal/metrics"
	"github.com/jmerrifield20/QuantumAegis/internal/rng"
	"github.com/jmerrifield20/QuantumAegis/internal/scan"
	"github.com/jmerrifield20/QuantumAegis/internal/threat"
	"go.uber.org/zap"
)

// MaxThreatLimit caps the ?limit= parameter on the threats route.
const MaxThreatLimit = 50

// DemoPrefix is the alternate mount point the dashboard front end uses.
const DemoPrefix = "/api/demo"

// BatchSource supplies scan batches. *intel.Feed satisfies it.
type BatchSource interface {
	Batch(ctx context.Context, query string, limit int) []scan.Record
}

// DashboardConfig holds the dashboard routes' settings.
type DashboardConfig struct {
	MetricsQuery string
	ThreatsQuery string
	// MaxThreats is the feed length when the request gives no limit.
	MaxThreats int
}

// DashboardHandler serves the metrics and threat feed routes. Both routes
// always answer 200: upstream trouble degrades to simulated data and a
// panic degrades to fixed fallback content.
type DashboardHandler struct {
	feed   BatchSource
	cfg    DashboardConfig
	now    func() time.Time
	rand   func(time.Time) rng.Source
	logger *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(feed BatchSource, cfg DashboardConfig, logger *zap.Logger) *DashboardHandler {
	if cfg.MetricsQuery == "" {
		cfg.MetricsQuery = intel.DefaultMetricsQuery
	}
	if cfg.ThreatsQuery == "" {
		cfg.ThreatsQuery = intel.DefaultThreatsQuery
	}
	if cfg.MaxThreats <= 0 {
		cfg.MaxThreats = threat.DefaultMaxResults
	}
	return &DashboardHandler{
		feed:   feed,
		cfg:    cfg,
		now:    time.Now,
		rand:   rng.ForTime,
		logger: logger,
	}
}

// SetClock overrides the reference time source.
func (h *DashboardHandler) SetClock(now func() time.Time) {
	h.now = now
}

// SetRandSource overrides the per-request random source factory.
func (h *DashboardHandler) SetRandSource(fn func(time.Time) rng.Source) {
	h.rand = fn
}

// Register mounts the dashboard routes at the root and under DemoPrefix.
func (h *DashboardHandler) Register(r gin.IRouter) {
	metricsRecovery := h.recoverWith("metrics", h.metricsFallback)
	threatsRecovery := h.recoverWith("threats", h.threatsFallback)

	for _, prefix := range []string{"", DemoPrefix} {
		r.GET(prefix+"/metrics", metricsRecovery, h.Metrics)
		r.OPTIONS(prefix+"/metrics", optionsOK)
		r.GET(prefix+"/threats", threatsRecovery, h.Threats)
		r.OPTIONS(prefix+"/threats", optionsOK)
	}
}

// Metrics handles GET /metrics.
func (h *DashboardHandler) Metrics(c *gin.Context) {
	ref := h.now().UTC()
	batch := h.feed.Batch(c.Request.Context(), h.cfg.MetricsQuery, intel.MetricsLimit)

	snap := metrics.Generate(batch, ref, h.rand(ref))
	recordSnapshot(snap.Source)

	c.JSON(http.StatusOK, snap)
}

// Threats handles GET /threats[?limit=N].
func (h *DashboardHandler) Threats(c *gin.Context) {
	ref := h.now().UTC()
	limit := h.limit(c)
	batch := h.feed.Batch(c.Request.Context(), h.cfg.ThreatsQuery, intel.ThreatsLimit)

	c.JSON(http.StatusOK, threat.Classify(batch, ref, limit, h.rand(ref)))
}

// limit parses ?limit=. Anything unparseable or non-positive means the
// configured default.
func (h *DashboardHandler) limit(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return h.cfg.MaxThreats
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return h.cfg.MaxThreats
	}
	return min(n, MaxThreatLimit)
}

func (h *DashboardHandler) metricsFallback(c *gin.Context) {
	c.JSON(http.StatusOK, metrics.Fallback(h.now().UTC()))
}

func (h *DashboardHandler) threatsFallback(c *gin.Context) {
	out := threat.Fallback(h.now().UTC())
	if n := h.limit(c); len(out) > n {
		out = out[:n]
	}
	c.JSON(http.StatusOK, out)
}

// recoverWith returns a recovery middleware that answers with fallback
// instead of a 500.
func (h *DashboardHandler) recoverWith(route string, fallback gin.HandlerFunc) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, err any) {
		h.logger.Error("dashboard handler panicked, serving fallback",
			zap.String("route", route),
			zap.Any("panic", err),
		)
		recordFallback(route)
		fallback(c)
		c.Abort()
	})
}
