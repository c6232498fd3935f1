// internal/middleware/rate_limit.go
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/javajoker/imi-licensing/internal/i18n"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller account, or per client IP for
// unauthenticated requests.
type RateLimiter struct {
	visitors map[string]*visitor
	mtx      sync.Mutex
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
	}
}

// Run evicts idle visitors until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evict(now, 3*time.Minute)
		}
	}
}

func (rl *RateLimiter) evict(now time.Time, idle time.Duration) {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(rl.visitors, key)
		}
	}
}

func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(rl.rate, rl.burst)
		rl.visitors[key] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if caller, ok := utils.GetCallerFromContext(c); ok {
			key = caller.Hex()
		}

		if !rl.getVisitor(key).Allow() {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "RATE_LIMITED", i18n.T(utils.GetLangFromContext(c), i18n.KeyRateLimitExceeded), nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// Default rate limiters
var (
	generalLimiter = NewRateLimiter(rate.Every(100*time.Millisecond), 20) // 10 requests per second
	writeLimiter   = NewRateLimiter(rate.Every(time.Second), 5)           // 1 mutation per second
)

// RunLimiters evicts idle visitors of the default limiters until ctx is done.
func RunLimiters(ctx context.Context) {
	go generalLimiter.Run(ctx)
	go writeLimiter.Run(ctx)
}

func GeneralRateLimit() gin.HandlerFunc {
	return generalLimiter.Middleware()
}

// WriteRateLimit throttles state-mutating requests per caller.
func WriteRateLimit() gin.HandlerFunc {
	return writeLimiter.Middleware()
}
