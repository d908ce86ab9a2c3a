package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/imaliveapp/imalive/config"
	"github.com/imaliveapp/imalive/quota"
	"github.com/imaliveapp/imalive/utils"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
	mu      sync.Mutex
}

var (
	limiters   = map[string]*rateLimiter{}
	limitersMu sync.Mutex
)

// RateLimitMiddleware applies a per-IP token bucket as the first line of abuse
// prevention. It is in-process and loses state on restart, which is fine: the
// Redis-backed window in RouteClassLimit is the one carrying user-visible
// metadata.
func RateLimitMiddleware() gin.HandlerFunc {
	cfg := config.Get()
	perMin := cfg.RateLimitPerMinute
	if perMin < 1 {
		perMin = 1
	}
	r := rate.Every(time.Minute / time.Duration(perMin))
	burst := perMin / 2
	if burst < 1 {
		burst = 1
	}

	return func(ctx *gin.Context) {
		ip := ctx.ClientIP()
		limiter := getLimiter(ip, r, burst)

		limiter.mu.Lock()
		allowed := limiter.limiter.Allow()
		limiter.mu.Unlock()

		if !allowed {
			utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}

// RouteClassLimit applies the shared fixed-window counter for a route class,
// keyed by authenticated user when available and client IP otherwise. The
// rejection carries limit/used/remaining so clients can explain themselves.
func RouteClassLimit(guard *quota.Guard, routeClass string, limit int, window time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		identity := ctx.ClientIP()
		if userID, ok := ctx.Get(ContextUserIDKey); ok {
			identity = fmt.Sprintf("u%v", userID)
		}
		decision := guard.CheckRate(ctx.Request.Context(), identity, routeClass, limit, window)
		if !decision.Allowed {
			utils.ErrorWithData(ctx, http.StatusTooManyRequests, 42902, "rate limit exceeded", decision)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func getLimiter(key string, limit rate.Limit, burst int) *rateLimiter {
	limitersMu.Lock()
	defer limitersMu.Unlock()

	cleanupExpiredLimitersLocked()

	if limiter, ok := limiters[key]; ok {
		limiter.expires = time.Now().Add(5 * time.Minute)
		return limiter
	}

	limiter := &rateLimiter{
		limiter: rate.NewLimiter(limit, burst),
		expires: time.Now().Add(5 * time.Minute),
	}
	limiters[key] = limiter
	return limiter
}

func cleanupExpiredLimitersLocked() {
	now := time.Now()
	for key, limiter := range limiters {
		if now.After(limiter.expires) {
			delete(limiters, key)
		}
	}
}
