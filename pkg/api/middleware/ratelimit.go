package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const staleClientAfter = 3 * time.Minute

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type rateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &rateLimiter{
		cfg:     cfg,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cl, ok := rl.clients[key]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.cfg.RequestsPerMinute)/60.0), rl.cfg.Burst),
		}
		rl.clients[key] = cl
	}
	cl.lastSeen = now

	return cl.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-staleClientAfter)
	for key, cl := range rl.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

func (rl *rateLimiter) retryAfter() int {
	if rl.cfg.RequestsPerMinute <= 0 {
		return 60
	}
	return int(math.Ceil(60.0 / float64(rl.cfg.RequestsPerMinute)))
}

// RateLimit applies a per-client-IP token bucket. Stale buckets are dropped
// until ctx ends. A non-positive rate disables limiting.
func RateLimit(ctx context.Context, cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	rl := newRateLimiter(cfg)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !rl.allow(clientIP) {
			slog.WarnContext(c.Request.Context(), "Rate limit exceeded", "clientIP", clientIP, "path", c.Request.URL.Path)
			retry := rl.retryAfter()
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}
