package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/clock"
)

// PerClientLimiter throttles requests per client IP with a token bucket per
// address. Check-in traffic arrives in bursts when a session opens, so the
// bucket capacity equals the full per-minute allowance; a whole class scanning
// at once drains it instead of being rejected outright.
type PerClientLimiter struct {
	capacity int
	perMin   int
	clk      clock.Clock

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewPerClientLimiter builds a limiter allowing perMinute requests per client.
func NewPerClientLimiter(perMinute int, clk clock.Clock) *PerClientLimiter {
	return &PerClientLimiter{
		capacity: perMinute,
		perMin:   perMinute,
		clk:      clk,
		buckets:  make(map[string]*bucket),
	}
}

// Middleware returns the gin handler enforcing the per-IP limit. Rejections
// use the same response envelope as the rest of the API.
func (l *PerClientLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}

func (l *PerClientLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clk.Now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}
	// Refill in whole tokens; `last` only advances when at least one token
	// accrued, so fractional progress is not lost between calls.
	refill := int(now.Sub(b.last).Minutes() * float64(l.perMin))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
