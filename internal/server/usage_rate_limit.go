package server

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paygo/internal/observability/logger"
	"go.uber.org/zap"
)

type usageRateLimitKey struct {
	UserID string `json:"user_id"`
}

// UsageRateLimit throttles usage recording per user before the handler
// spends a database transaction on the request.
func (s *Server) UsageRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.usageLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()

		userID, err := readUsageRateLimitKey(c)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		if userID == "" {
			c.Next()
			return
		}

		allowed, err := s.usageLimiter.AllowUser(ctx, userID)
		if err != nil {
			logger.FromContext(ctx).Warn("usage rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimit(ctx, allowed)
		}
		if !allowed {
			logger.FromContext(ctx).Warn("usage rate limit exceeded",
				zap.String("user_id", userID),
			)
			c.Header("Retry-After", "1")
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

// readUsageRateLimitKey peeks at the JSON body for the user identifier
// and puts the body back for the handler's bind.
func readUsageRateLimitKey(c *gin.Context) (string, error) {
	if c.Request.Body == nil {
		return "", nil
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(payload))

	var key usageRateLimitKey
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &key); err != nil {
			return "", err
		}
	}

	return strings.TrimSpace(key.UserID), nil
}
