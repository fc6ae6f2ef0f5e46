package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetBilling returns the organization's own market.dev plan.
func (s *Server) GetBilling(c *gin.Context) {
	resp, err := s.organizationSvc.FindBillingByOrg(c.Request.Context(), orgIDFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
