package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/evservicecenter/pkg/config"
	"github.com/wyfcoding/evservicecenter/pkg/ratelimit"
)

type fakeLimiter struct {
	lastKey string
	result  *ratelimit.Result
	err     error
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit ratelimit.Limit) (*ratelimit.Result, error) {
	f.lastKey = key
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newRateLimitRouter(limiter ratelimit.RateLimiter, serviceName string, cfg config.RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(limiter, serviceName, cfg))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return router
}

func TestRateLimitKeyScopedToService(t *testing.T) {
	limiter := &fakeLimiter{result: &ratelimit.Result{Allowed: true, Remaining: 9}}
	router := newRateLimitRouter(limiter, "inventory", config.RateLimitConfig{Enabled: true, Rate: 10, Period: 1, Burst: 10})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.HasPrefix(limiter.lastKey, "evsc:ratelimit:inventory:") {
		t.Fatalf("key = %q, want service-scoped prefix", limiter.lastKey)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "9" {
		t.Fatalf("X-RateLimit-Remaining = %q, want 9", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimitRejectsWhenExhausted(t *testing.T) {
	limiter := &fakeLimiter{result: &ratelimit.Result{Allowed: false, RetryAfter: 2 * time.Second}}
	router := newRateLimitRouter(limiter, "inventory", config.RateLimitConfig{Enabled: true, Rate: 1, Period: 1, Burst: 1})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("Retry-After = %q, want 2", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	router := newRateLimitRouter(limiter, "inventory", config.RateLimitConfig{Enabled: true, Rate: 1, Period: 1, Burst: 1})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (fail open)", rec.Code)
	}
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	limiter := &fakeLimiter{}
	router := newRateLimitRouter(limiter, "inventory", config.RateLimitConfig{Enabled: false})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if limiter.lastKey != "" {
		t.Fatalf("limiter consulted while disabled, key = %q", limiter.lastKey)
	}
}
