package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	"github.com/gitwallet/market/pkg/db/pagination"
)

func (s *Server) ListStripeEvents(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Source    string `form:"source"`
		Type      string `form:"type"`
		Processed string `form:"processed"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	processed, err := parseOptionalBool(query.Processed)
	if err != nil {
		AbortWithError(c, newValidationError("processed", "invalid_processed", "invalid processed"))
		return
	}

	source := strings.ToLower(strings.TrimSpace(query.Source))
	switch source {
	case "", paymentdomain.SourceConnect, paymentdomain.SourcePlatform:
	default:
		AbortWithError(c, newValidationError("source", "invalid_source", "invalid source"))
		return
	}

	resp, err := s.webhookSvc.List(c.Request.Context(), paymentdomain.ListRequest{
		Source:     source,
		Type:       strings.TrimSpace(query.Type),
		Processed:  processed,
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Events,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetStripeEvent(c *gin.Context) {
	id, err := stripeEventIDFromParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.webhookSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ProcessStripeEvent replays a stored event that was deferred or failed.
// Events already applied report a duplicate outcome.
func (s *Server) ProcessStripeEvent(c *gin.Context) {
	id, err := stripeEventIDFromParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.webhookSvc.Process(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func stripeEventIDFromParam(c *gin.Context) (snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(c.Param("id"))
	if err != nil || id == nil {
		return 0, newValidationError("id", "invalid_id", "invalid event id")
	}
	return *id, nil
}
