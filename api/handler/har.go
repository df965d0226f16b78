package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fetchkit/browsecore/internal/pipeline"
	"github.com/fetchkit/browsecore/models"
)

// harRequest is the payload for POST /api/v1/har.
type harRequest struct {
	URL     string           `json:"url" binding:"required,url"`
	Options models.HarOptions `json:"options"`
}

// ExportHAR returns a handler for POST /api/v1/har — spec §6's
// export_har(url, opts) operation.
func ExportHAR(core *pipeline.CoreContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req harRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.HarResult{
				OK:  false,
				Err: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}

		result := core.ExportHAR(c.Request.Context(), tenantFromRequest(c, core), req.URL, req.Options)
		status := http.StatusOK
		if !result.OK {
			status = statusForCode(errCodeOf(result.Err))
		}
		c.JSON(status, result)
	}
}
