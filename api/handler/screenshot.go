package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fetchkit/browsecore/internal/pipeline"
	"github.com/fetchkit/browsecore/models"
)

// screenshotRequest is the payload for POST /api/v1/screenshot.
type screenshotRequest struct {
	URL     string                    `json:"url" binding:"required,url"`
	Options models.ScreenshotOptions `json:"options"`
}

// Screenshot returns a handler for POST /api/v1/screenshot — spec §6's
// screenshot(url, opts) operation.
func Screenshot(core *pipeline.CoreContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req screenshotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScreenshotResult{
				OK:  false,
				Err: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}

		result := core.Screenshot(c.Request.Context(), tenantFromRequest(c, core), req.URL, req.Options)
		status := http.StatusOK
		if !result.OK {
			status = statusForCode(errCodeOf(result.Err))
		}
		c.JSON(status, result)
	}
}
