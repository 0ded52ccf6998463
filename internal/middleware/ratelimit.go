package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/aman-churiwal/marketplace-gateway/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimit bounds inbound requests per client IP using the
// redis-backed fixed window limiter, shared across gateway instances.
func RateLimit(limiter *ratelimit.FixedWindowLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := c.ClientIP()

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			// Fail open: an unreachable limiter store should not take
			// the read path down with it.
			c.Next()
			return
		}

		remaining, _ := limiter.Remaining(ctx, key)
		reset := limiter.Reset()

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Limit()))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))

		if !allowed {
			retryAfter := int(time.Until(reset).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": reset.Unix(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
