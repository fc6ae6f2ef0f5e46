package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	"github.com/gitwallet/market/pkg/db/pagination"
)

func (s *Server) ListSubscriptions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		TierID      string `form:"tier_id"`
		BuyerUserID string `form:"buyer_user_id"`
		State       string `form:"state"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tierID, err := parseOptionalSnowflakeID(query.TierID)
	if err != nil {
		AbortWithError(c, newValidationError("tier_id", "invalid_tier_id", "invalid tier_id"))
		return
	}
	buyerID, err := parseOptionalSnowflakeID(query.BuyerUserID)
	if err != nil {
		AbortWithError(c, newValidationError("buyer_user_id", "invalid_buyer_user_id", "invalid buyer_user_id"))
		return
	}

	state := subscriptiondomain.State(strings.ToLower(strings.TrimSpace(query.State)))
	switch state {
	case "", subscriptiondomain.StateRenewing, subscriptiondomain.StateCancelled:
	default:
		AbortWithError(c, newValidationError("state", "invalid_state", "invalid state"))
		return
	}

	req := subscriptiondomain.ListRequest{
		OrgID:      orgIDFromContext(c),
		State:      state,
		Pagination: query.Pagination,
	}
	if tierID != nil {
		req.TierID = *tierID
	}
	if buyerID != nil {
		req.BuyerUserID = *buyerID
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Subscriptions,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetSubscription(c *gin.Context) {
	id, err := subscriptionIDFromParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriptionSvc.Get(c.Request.Context(), orgIDFromContext(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// CancelSubscription stops renewal at the end of the paid period.
func (s *Server) CancelSubscription(c *gin.Context) {
	id, err := subscriptionIDFromParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriptionSvc.Cancel(c.Request.Context(), orgIDFromContext(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReactivateSubscription(c *gin.Context) {
	id, err := subscriptionIDFromParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriptionSvc.Reactivate(c.Request.Context(), orgIDFromContext(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func subscriptionIDFromParam(c *gin.Context) (snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(c.Param("id"))
	if err != nil || id == nil {
		return 0, newValidationError("id", "invalid_id", "invalid subscription id")
	}
	return *id, nil
}

func isSubscriptionValidationError(err error) bool {
	switch {
	case errors.Is(err, subscriptiondomain.ErrInvalidOrganization),
		errors.Is(err, subscriptiondomain.ErrInvalidSubscription),
		errors.Is(err, subscriptiondomain.ErrInvalidBuyer):
		return true
	default:
		return false
	}
}
