package web

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxTrackedIPs bounds the per-IP bucket map; past it the map is reset
// wholesale. Buckets refill within seconds, so a reset only briefly
// widens the limit for returning clients.
const maxTrackedIPs = 10000

// RateLimiter hands out one token bucket per client IP. Lookups of
// known IPs take only the read lock.
type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		rate:    r,
		burst:   b,
	}
}

func (rl *RateLimiter) bucketFor(ip string) *rate.Limiter {
	rl.mu.RLock()
	bucket, ok := rl.buckets[ip]
	rl.mu.RUnlock()
	if ok {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	// another request may have created it between the locks
	if bucket, ok := rl.buckets[ip]; ok {
		return bucket
	}
	if len(rl.buckets) >= maxTrackedIPs {
		rl.buckets = make(map[string]*rate.Limiter)
	}
	bucket = rate.NewLimiter(rl.rate, rl.burst)
	rl.buckets[ip] = bucket
	return bucket
}

// RateLimitMiddleware answers 429 once a client has drained its bucket.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.bucketFor(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// MaxBytesMiddleware caps request bodies. Declared oversize requests are
// refused up front; undeclared ones fail mid-read through MaxBytesReader.
func MaxBytesMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "Request body too large",
			})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
