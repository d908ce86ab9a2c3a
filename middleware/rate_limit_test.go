package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imaliveapp/imalive/config"
	"github.com/imaliveapp/imalive/quota"
)

func TestRateLimitMiddlewareThrottlesPerIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config.SetForTesting(config.AppConfig{JWTSecret: "test-secret", RateLimitPerMinute: 4})

	r := gin.New()
	r.Use(RateLimitMiddleware())
	r.GET("/ping", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })

	do := func(ip string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = ip + ":12345"
		r.ServeHTTP(w, req)
		return w.Code
	}

	// Burst is perMin/2 = 2: the first two requests pass, the third is shed.
	if code := do("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("request 1: %d", code)
	}
	if code := do("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("request 2: %d", code)
	}
	if code := do("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("request 3: %d, want 429", code)
	}

	// A different client IP has its own bucket.
	if code := do("10.0.0.2"); code != http.StatusOK {
		t.Fatalf("other ip: %d", code)
	}
}

func TestRouteClassLimitFailsOpenWithoutRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config.SetForTesting(config.AppConfig{JWTSecret: "test-secret"})

	guard := quota.NewGuard(nil)
	r := gin.New()
	r.POST("/checkin", RouteClassLimit(guard, "checkin", 1, time.Minute), func(ctx *gin.Context) {
		ctx.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/checkin", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: %d; the Redis-backed window must fail open", i, w.Code)
		}
	}
}
