package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/service"
)

// RateLimitMiddleware counts requests per scope and client key in a fixed window
func RateLimitMiddleware(rateLimiter *service.RateLimiter, scope string, limit int, window time.Duration, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := service.RateLimitKey(scope, keyFunc(c))

		allowed, err := rateLimiter.CheckAndIncrement(c.Request.Context(), key, limit, window)
		if err != nil {
			// Counter storage failures must not take the endpoint down; the error is logged.
			_ = c.Error(err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			abortWithError(c, domain.ErrRateLimited)
			return
		}

		c.Next()
	}
}

// IPBasedKey extracts rate limit key from client IP.
// Forwarded headers are honoured only from the engine's trusted proxies.
func IPBasedKey(c *gin.Context) string {
	return c.ClientIP()
}
