package handler

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTTL       = 10 * time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters holds one token bucket per client address.
type clientLimiters struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	limit   rate.Limit
	burst   int
}

func newClientLimiters(rps, burst int) *clientLimiters {
	return &clientLimiters{
		buckets: make(map[string]*clientBucket),
		limit:   rate.Limit(rps),
		burst:   burst,
	}
}

func (l *clientLimiters) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for longer than limiterIdleTTL.
func (l *clientLimiters) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.buckets, ip)
		}
	}
}

func (l *clientLimiters) run(ctx context.Context) {
	t := time.NewTicker(limiterSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.sweep(now)
		}
	}
}

// retryAfter is the whole number of seconds until one token refills.
func (l *clientLimiters) retryAfter() string {
	if l.limit <= 0 {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(1 / float64(l.limit))))
}

// RateLimiter returns a Gin middleware that enforces per-IP token-bucket
// rate limiting. rps is the steady-state requests per second; burst is the
// maximum burst size. Idle buckets are swept until ctx is cancelled.
// Preflight requests are never counted.
func RateLimiter(ctx context.Context, rps, burst int) gin.HandlerFunc {
	limiters := newClientLimiters(rps, burst)
	go limiters.run(ctx)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if !limiters.allow(c.ClientIP(), time.Now()) {
			aegisRateLimitedTotal.WithLabelValues(c.FullPath()).Inc()
			c.Header("Retry-After", limiters.retryAfter())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
