// Package api assembles the HTTP router: middleware, CORS, and the handler
// groups from package handler.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/QuantumAegis/internal/api/handler"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Config holds router configuration.
type Config struct {
	CORSOrigins  []string
	RateLimitRPS int
}

// HealthReporter reports per-upstream state. *health.HealthChecker
// satisfies it.
type HealthReporter interface {
	Statuses() map[string]string
}

// Handlers are the route groups to mount. Intel and Health may be nil.
type Handlers struct {
	Dashboard *handler.DashboardHandler
	Intel     *handler.IntelHandler
	Health    HealthReporter
}

// NewRouter builds the gin engine. ctx bounds background work started by
// middleware.
func NewRouter(ctx context.Context, cfg Config, h Handlers, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.RequestID())
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	router.Use(handler.SecurityHeaders())
	router.Use(handler.BodyLimit(maxBodyBytes))
	router.Use(handler.PrometheusMiddleware())
	router.Use(handler.RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if h.Health != nil {
			body["upstreams"] = h.Health.Statuses()
		}
		c.JSON(http.StatusOK, body)
	})
	router.GET("/debug/metrics", handler.MetricsHandler())

	// Dashboard routes always answer; only the intel routes are rate limited.
	h.Dashboard.Register(router)
	if h.Intel != nil {
		intel := router.Group("")
		if cfg.RateLimitRPS > 0 {
			intel.Use(handler.RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitRPS*2))
		}
		h.Intel.Register(intel)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:              []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:              []string{"Origin", "Content-Type", "Accept", handler.RequestIDHeader},
		ExposeHeaders:             []string{"Content-Length", handler.RequestIDHeader},
		MaxAge:                    12 * time.Hour,
		OptionsResponseStatusCode: http.StatusOK,
	}
	if len(origins) == 0 || containsWildcard(origins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
