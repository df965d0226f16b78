package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fetchkit/browsecore/internal/pipeline"
	"github.com/fetchkit/browsecore/models"
)

// fetchRequest is the payload for POST /api/v1/fetch — the HTTP transport
// shape for spec §6's fetch(url, opts) operation.
type fetchRequest struct {
	URL     string             `json:"url" binding:"required,url"`
	Options models.FetchOptions `json:"options"`
}

// Fetch returns a handler for POST /api/v1/fetch.
func Fetch(core *pipeline.CoreContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req fetchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.BrowseResult{
				Success: false,
				Error:   &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}
		req.Options.Defaults()

		result, err := core.Fetch(c.Request.Context(), models.Request{
			URL:            req.URL,
			Options:        req.Options,
			TenantID:       tenantFromRequest(c, core),
			SessionProfile: req.Options.SessionProfile,
			StartedAt:      time.Now(),
		})
		if err != nil {
			ce := models.AsCoreError(err)
			c.JSON(statusForCode(ce.Code), models.BrowseResult{
				Success: false,
				Error:   ce.ToDetail(),
			})
			return
		}

		status := http.StatusOK
		if !result.Success {
			status = statusForCode(errCodeOf(result.Error))
		}
		c.JSON(status, result)
	}
}
