package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fetchkit/browsecore/api/handler"
	"github.com/fetchkit/browsecore/api/middleware"
	"github.com/fetchkit/browsecore/config"
	"github.com/fetchkit/browsecore/internal/pipeline"
)

// NewRouter creates a configured Gin engine exposing the six spec §6
// operations over HTTP, plus a health endpoint.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(core *pipeline.CoreContext, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(core, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/fetch", handler.Fetch(core))
	protected.POST("/batch", handler.Batch(core))
	protected.POST("/screenshot", handler.Screenshot(core))
	protected.POST("/har", handler.ExportHAR(core))
	protected.GET("/domain/:domain/intelligence", handler.DomainIntelligence(core))
	protected.GET("/domain/:domain/capabilities", handler.DomainCapabilities(core))

	return r
}
