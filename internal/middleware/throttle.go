package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"messaging-service/internal/observability"
)

type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[key]; ok {
		return l
	}
	rps := p.rps
	if rps <= 0 {
		rps = 1
	}
	burst := p.burst
	if burst <= 0 {
		burst = 5
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = l
	return l
}

// LoginThrottle applies a token bucket per client IP to credential endpoints.
func LoginThrottle(rps float64, burst int) gin.HandlerFunc {
	pool := &limiterPool{rps: rps, burst: burst}
	return func(c *gin.Context) {
		if !pool.get(c.ClientIP()).Allow() {
			observability.IncRateLimited("login")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many login attempts",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}
