package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fetchkit/browsecore/internal/pipeline"
	"github.com/fetchkit/browsecore/models"
)

// DomainIntelligence returns a handler for GET /api/v1/domain/:domain/intelligence
// — spec §6's get_domain_intelligence(domain) operation.
func DomainIntelligence(core *pipeline.CoreContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		domain := c.Param("domain")
		intel, err := core.GetDomainIntelligence(c.Request.Context(), tenantFromRequest(c, core), domain)
		if err != nil {
			ce := models.AsCoreError(err)
			c.JSON(statusForCode(ce.Code), gin.H{"error": ce.ToDetail()})
			return
		}
		c.JSON(http.StatusOK, intel)
	}
}

// DomainCapabilities returns a handler for GET /api/v1/domain/:domain/capabilities
// — spec §6's get_domain_capabilities(domain) operation.
func DomainCapabilities(core *pipeline.CoreContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		domain := c.Param("domain")
		caps, err := core.GetDomainCapabilities(c.Request.Context(), tenantFromRequest(c, core), domain)
		if err != nil {
			ce := models.AsCoreError(err)
			c.JSON(statusForCode(ce.Code), gin.H{"error": ce.ToDetail()})
			return
		}
		c.JSON(http.StatusOK, caps)
	}
}
