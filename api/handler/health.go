package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fetchkit/browsecore/internal/pipeline"
)

// healthResponse is the payload for GET /api/v1/health.
type healthResponse struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	Version          string `json:"version"`
	BrowserAvailable bool   `json:"browser_available"`
	TraceEnabled     bool   `json:"trace_enabled"`
}

// Health returns a handler for GET /api/v1/health.
//
// Reports whether the playwright tier is available — when the browser
// failed to launch at startup, intelligence and lightweight tiers still
// serve traffic but status degrades so monitoring notices.
func Health(core *pipeline.CoreContext, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		if core.Browser == nil {
			status = "degraded"
		}

		c.JSON(http.StatusOK, healthResponse{
			Status:           status,
			Uptime:           time.Since(startTime).Round(time.Second).String(),
			Version:          "0.1.0",
			BrowserAvailable: core.Browser != nil,
			TraceEnabled:     core.Trace.Enabled(),
		})
	}
}
