package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"messaging-service/internal/observability"
	"messaging-service/internal/ratelimit"
)

// RateLimit limits POST requests per client IP. Limiter errors let the request through.
func RateLimit(limiter ratelimit.Limiter, limit int, window time.Duration, logger zerolog.Logger) gin.HandlerFunc {
	seconds := int(window / time.Second)
	retryAfter := strconv.Itoa(seconds)
	message := fmt.Sprintf("Rate limit exceeded. Maximum %d messages per %s.", limit, windowName(window))

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		ip := c.ClientIP()
		allowed, err := limiter.Allow(c.Request.Context(), ip)
		if err != nil {
			logger.Warn().Err(err).Str("client_ip", ip).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			observability.IncRateLimited("messages")
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       message,
				"code":        "rate_limited",
				"retry_after": fmt.Sprintf("%d seconds", seconds),
			})
			return
		}
		c.Next()
	}
}

func windowName(window time.Duration) string {
	if window == time.Minute {
		return "minute"
	}
	return window.String()
}
