package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter returns a Gin middleware enforcing per-IP token-bucket rate
// limiting. rps is the steady-state requests per second and burst the
// bucket size; non-positive values fall back to 20 rps / 2*rps burst.
// Idle client entries are pruned inline during request handling, so the
// middleware holds no background goroutine.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 2 * rps
	}

	var mu sync.Mutex
	limiters := make(map[string]*clientLimiter)
	nextSweep := time.Now().Add(limiterSweepEvery)

	return func(c *gin.Context) {
		now := time.Now()

		mu.Lock()
		if now.After(nextSweep) {
			for ip, l := range limiters {
				if now.Sub(l.lastSeen) > limiterIdleAfter {
					delete(limiters, ip)
				}
			}
			nextSweep = now.Add(limiterSweepEvery)
		}

		ip := c.ClientIP()
		l, ok := limiters[ip]
		if !ok {
			l = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			limiters[ip] = l
		}
		l.lastSeen = now
		allowed := l.limiter.Allow()
		mu.Unlock()

		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
