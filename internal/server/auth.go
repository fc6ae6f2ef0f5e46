package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	authdomain "github.com/gitwallet/market/internal/auth/domain"
	"github.com/gitwallet/market/internal/auth/session"
	"github.com/gitwallet/market/internal/observability/logger"
	"go.uber.org/zap"
)

type verifyUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	OrgID   string `json:"org_id,omitempty"`
	OrgSlug string `json:"org_slug,omitempty"`
}

type verifyResponse struct {
	Success bool        `json:"success"`
	User    *verifyUser `json:"user,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// VerifyToken validates a bearer session token for the Rails app.
func (s *Server) VerifyToken(c *gin.Context) {
	token, ok := session.BearerToken(c)
	if !ok {
		s.verifyFailed(c, authdomain.ErrMissingToken)
		return
	}
	s.verify(c, token)
}

// VerifySession validates the shared session cookie for the Rails app.
func (s *Server) VerifySession(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		s.verifyFailed(c, authdomain.ErrMissingToken)
		return
	}
	s.verify(c, token)
}

func (s *Server) verify(c *gin.Context, token string) {
	identity, err := s.authsvc.Resolve(c.Request.Context(), token)
	if err != nil {
		s.verifyFailed(c, err)
		return
	}

	user := &verifyUser{
		ID:    identity.UserID.String(),
		Email: identity.Email,
		Name:  identity.Name,
	}
	if identity.OrgID != 0 {
		user.OrgID = identity.OrgID.String()
		user.OrgSlug = identity.OrgSlug
	}
	c.JSON(http.StatusOK, verifyResponse{Success: true, User: user})
}

func (s *Server) verifyFailed(c *gin.Context, err error) {
	status := http.StatusUnauthorized
	code := err.Error()
	switch {
	case errors.Is(err, authdomain.ErrMissingToken),
		errors.Is(err, authdomain.ErrInvalidToken),
		errors.Is(err, authdomain.ErrTokenExpired),
		errors.Is(err, authdomain.ErrUnknownUser):
	case errors.Is(err, authdomain.ErrSecretNotConfigured):
		status = http.StatusServiceUnavailable
	default:
		logger.FromContext(c.Request.Context()).Error("session verification failed", zap.Error(err))
		status = http.StatusInternalServerError
		code = ErrInternal.Error()
	}
	c.JSON(status, verifyResponse{Success: false, Error: code})
}
