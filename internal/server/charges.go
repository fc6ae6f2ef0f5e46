package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	chargedomain "github.com/gitwallet/market/internal/charge/domain"
	"github.com/gitwallet/market/pkg/db/pagination"
)

func (s *Server) ListCharges(c *gin.Context) {
	var query struct {
		pagination.Pagination
		BuyerUserID string `form:"buyer_user_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	buyerID, err := parseOptionalSnowflakeID(query.BuyerUserID)
	if err != nil {
		AbortWithError(c, newValidationError("buyer_user_id", "invalid_buyer_user_id", "invalid buyer_user_id"))
		return
	}

	req := chargedomain.ListRequest{
		OrgID:      orgIDFromContext(c),
		Pagination: query.Pagination,
	}
	if buyerID != nil {
		req.BuyerUserID = *buyerID
	}

	resp, err := s.chargeSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Charges,
		"page_info": resp.PageInfo,
	})
}

func isChargeValidationError(err error) bool {
	switch {
	case errors.Is(err, chargedomain.ErrInvalidOrganization),
		errors.Is(err, chargedomain.ErrInvalidPayment),
		errors.Is(err, chargedomain.ErrInvalidBuyer):
		return true
	default:
		return false
	}
}
