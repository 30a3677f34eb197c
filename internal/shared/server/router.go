package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"maintenance-backend/internal/consolidation"
	"maintenance-backend/internal/services/health"
	"maintenance-backend/internal/shared/config"
	"maintenance-backend/internal/shared/metrics"
	"maintenance-backend/internal/shared/server/middleware"
	"maintenance-backend/internal/shared/server/respond"
	"maintenance-backend/internal/staging"
)

const (
	rateGroupSubmit = "SUBMIT"
	rateGroupRead   = "READ"
)

// RouterDeps carries the handlers mounted on the router. Nil handlers are
// skipped.
type RouterDeps struct {
	Config               config.Config
	ConsolidationHandler *consolidation.Handler
	StagingHandler       *staging.Handler
	Health               *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})

	limited := api.Group("")
	limited.Use(
		middleware.RateLimit(rateLimitConfig(cfg)),
		middleware.BodyLimit(cfg.MaxRequestBodyBytes),
	)
	if deps.ConsolidationHandler != nil {
		deps.ConsolidationHandler.RegisterRoutes(limited)
	}
	if deps.StagingHandler != nil {
		deps.StagingHandler.RegisterRoutes(limited)
	}

	return r
}

// rateLimitConfig limits writes per device, falling back to the client IP.
// Reads get four times the write budget.
func rateLimitConfig(cfg config.Config) middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		DefaultGroup: rateGroupSubmit,
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet {
				return rateGroupRead
			}
			return rateGroupSubmit
		},
		KeyFor: func(c *gin.Context) string { return c.GetHeader("X-Device-Id") },
		Rules: map[string]middleware.RateLimitRule{
			rateGroupSubmit: middleware.PerMinute(cfg.RateLimitPerMinute),
			rateGroupRead:   middleware.PerMinute(cfg.RateLimitPerMinute * 4),
		},
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
