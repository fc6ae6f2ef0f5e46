package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/gitwallet/market/internal/observability/context"
	"github.com/gitwallet/market/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextUserIDKey = "user_id"

	rateLimitEndpointVerify = "auth.verify"
	rateLimitReasonClient   = "client-rate"
)

// SessionRequired resolves the session token from the bearer header or the
// shared cookie and stores the caller on the request.
func (s *Server) SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.Token(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		identity, err := s.authsvc.Resolve(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), "user", identity.UserID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserIDKey, identity.UserID)
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(snowflake.ID)
	return id, ok && id != 0
}

// RailsCORS allows credentialed cross-origin calls from the Rails app only.
// Preflight requests are answered here.
func (s *Server) RailsCORS() gin.HandlerFunc {
	allowed := strings.TrimRight(strings.TrimSpace(s.cfg.Session.RailsOrigin), "/")
	return func(c *gin.Context) {
		origin := strings.TrimRight(strings.TrimSpace(c.GetHeader("Origin")), "/")
		match := origin != "" && allowed != "" && origin == allowed

		if match {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Max-Age", "600")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			if !match {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// VerifyRateLimit throttles session verification per client address. Redis
// failures let the request through.
func (s *Server) VerifyRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.verifyLimiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.verifyLimiter.Allow(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("verify rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			s.obsMetrics.RecordRateLimitDenied(ctx, rateLimitEndpointVerify, rateLimitReasonClient)
			if seconds := result.RetryAfterSeconds(); seconds > 0 {
				c.Header("Retry-After", strconv.Itoa(seconds))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, verifyResponse{
				Success: false,
				Error:   ErrRateLimited.Error(),
			})
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, rateLimitEndpointVerify)
		c.Next()
	}
}
