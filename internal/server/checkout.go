package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
)

// CheckoutReturn is where Stripe sends the browser after a platform plan
// checkout. The outcome always ends on the billing page.
func (s *Server) CheckoutReturn(c *gin.Context) {
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	if status == paymentdomain.CheckoutStatusCancelled {
		c.Redirect(http.StatusFound, s.checkoutSvc.RedirectURL(paymentdomain.CheckoutStatusCancelled, nil))
		return
	}

	if _, err := s.checkoutSvc.Sync(c.Request.Context(), c.Query("session_id")); err != nil {
		c.Redirect(http.StatusFound, s.checkoutSvc.RedirectURL(paymentdomain.CheckoutStatusError, err))
		return
	}
	c.Redirect(http.StatusFound, s.checkoutSvc.RedirectURL(paymentdomain.CheckoutStatusSuccess, nil))
}

type checkoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// StartCheckout opens a Stripe checkout for the signed-in buyer.
func (s *Server) StartCheckout(c *gin.Context) {
	tierID, err := parseOptionalSnowflakeID(c.Param("id"))
	if err != nil || tierID == nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid tier id"))
		return
	}
	buyerID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	session, err := s.checkoutSvc.Start(c.Request.Context(), paymentdomain.StartRequest{
		TierID:      *tierID,
		BuyerUserID: buyerID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": checkoutResponse{SessionID: session.ID, URL: session.URL}})
}
