package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gitwallet/market/internal/observability/logger"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	"go.uber.org/zap"
)

// Stripe caps event payloads well below this.
const maxWebhookBodyBytes = 1 << 20

func (s *Server) HandleConnectWebhook(c *gin.Context) {
	s.handleStripeWebhook(c, paymentdomain.SourceConnect)
}

func (s *Server) HandlePlatformWebhook(c *gin.Context) {
	s.handleStripeWebhook(c, paymentdomain.SourcePlatform)
}

func (s *Server) handleStripeWebhook(c *gin.Context, source string) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": paymentdomain.ErrInvalidPayload.Error()})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	result, err := s.webhookSvc.Ingest(c.Request.Context(), source, payload, signature)
	if err != nil {
		status := webhookErrorStatus(err)
		if status == http.StatusInternalServerError {
			logger.FromContext(c.Request.Context()).Error("stripe webhook failed",
				zap.String("source", source),
				zap.Error(err),
			)
			// Storage and handler failures stay in the log.
			err = ErrInternal
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	logger.FromContext(c.Request.Context()).Debug("stripe webhook received",
		zap.String("source", source),
		zap.String("event_id", result.EventID),
		zap.String("outcome", result.Outcome),
	)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// webhookErrorStatus tells Stripe whether a redelivery can help: 4xx for
// deliveries that will never verify, 409 while another worker holds the
// event, 500 for failures worth retrying.
func webhookErrorStatus(err error) int {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidSource):
		return http.StatusBadRequest
	case errors.Is(err, paymentdomain.ErrEventInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
