package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fetchkit/browsecore/internal/pipeline"
	"github.com/fetchkit/browsecore/models"
)

// batchRequest is the payload for POST /api/v1/batch — the HTTP transport
// shape for spec §6's batch_fetch(urls, opts, batch_opts) operation.
type batchRequest struct {
	URLs       []string           `json:"urls" binding:"required,min=1,max=100"`
	Options    models.FetchOptions `json:"options"`
	BatchOpts  models.BatchOptions `json:"batch_opts"`
}

// Batch returns a handler for POST /api/v1/batch.
func Batch(core *pipeline.CoreContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req batchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}
		req.Options.Defaults()

		results := core.BatchFetch(c.Request.Context(), tenantFromRequest(c, core), req.URLs, req.Options, req.BatchOpts)
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}
