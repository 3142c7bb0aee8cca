package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	defaultMaxLimiters = 10000
	defaultIdleTTL     = 10 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. The map is bounded:
// idle visitors are evicted, and when full the least recently seen one goes.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	max      int
	idleTTL  time.Duration
	now      func() time.Time
}

// NewRateLimiter allows requests per window for each IP, with the whole
// allowance available as burst.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Every(window / time.Duration(requests)),
		burst:    requests,
		max:      defaultMaxLimiters,
		idleTTL:  defaultIdleTTL,
		now:      time.Now,
	}
}

func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if v, exists := rl.visitors[ip]; exists {
		v.lastSeen = now
		return v.limiter
	}

	if len(rl.visitors) >= rl.max {
		rl.evictLocked(now)
	}
	v := &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst), lastSeen: now}
	rl.visitors[ip] = v
	return v.limiter
}

// evictLocked drops idle visitors, then the oldest one if still full.
func (rl *RateLimiter) evictLocked(now time.Time) {
	var oldestIP string
	var oldest time.Time
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.visitors, ip)
			continue
		}
		if oldestIP == "" || v.lastSeen.Before(oldest) {
			oldestIP, oldest = ip, v.lastSeen
		}
	}
	if len(rl.visitors) >= rl.max && oldestIP != "" {
		delete(rl.visitors, oldestIP)
	}
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Middleware rejects over-limit clients with 429. Paths with one of the
// excluded prefixes are never limited.
func (rl *RateLimiter) Middleware(excludePaths ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, p := range excludePaths {
			if p != "" && strings.HasPrefix(path, p) {
				c.Next()
				return
			}
		}
		if !rl.GetLimiter(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
