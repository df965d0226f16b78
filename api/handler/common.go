package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fetchkit/browsecore/internal/pipeline"
	"github.com/fetchkit/browsecore/models"
)

// tenantFromRequest resolves the caller's tenant from the X-Tenant-ID
// header, falling back to the server's configured default tenant.
func tenantFromRequest(c *gin.Context, core *pipeline.CoreContext) models.TenantID {
	if id := c.GetHeader("X-Tenant-ID"); id != "" {
		return models.TenantID(id)
	}
	return models.TenantID(core.Config.Tenant.DefaultID)
}

// errCodeOf extracts the error code from a possibly-nil ErrorDetail.
func errCodeOf(e *models.ErrorDetail) string {
	if e == nil {
		return ""
	}
	return e.Code
}

// statusForCode maps a spec §6 error code to an HTTP status.
func statusForCode(code string) int {
	switch code {
	case models.ErrCodeInvalidURL, models.ErrCodeInvalidInput, models.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case models.ErrCodeSSRFBlocked, models.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case models.ErrCodeRateLimited, models.ErrCodeTierBudgetExceeded:
		return http.StatusTooManyRequests
	case models.ErrCodeAllTiersFailed, models.ErrCodeAnomalyUnrecoverable:
		return http.StatusBadGateway
	case models.ErrCodeRendererUnavailable:
		return http.StatusServiceUnavailable
	case models.ErrCodeCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
