package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Limiter counts hits per key. redisstate.RateLimiter implements it.
type Limiter interface {
	Exceeded(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit allows at most maxRequests per client IP per window.
func RateLimit(limiter Limiter, maxRequests int, window time.Duration) gin.HandlerFunc {
	if limiter == nil {
		panic("limiter cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		// Behind a proxy ClientIP relies on gin's trusted proxy settings.
		key := "ip:" + c.ClientIP()

		exceeded, err := limiter.Exceeded(c.Request.Context(), key, maxRequests, window)
		if err != nil {
			logrus.WithError(err).Error("RateLimit: limiter failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Rate limiting error"})
			return
		}
		if exceeded {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
