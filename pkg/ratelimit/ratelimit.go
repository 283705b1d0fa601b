// Package ratelimit 基于 redis_rate 的限流器。
// 各服务共用同一 Redis，限流桶的键必须带服务前缀隔离。
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "evsc:ratelimit"

// KeyFor 构建限流桶键：evsc:ratelimit:<服务名>:<调用方标识>。
// 服务名隔离各服务的配额，调用方标识通常是客户端 IP。
func KeyFor(service, client string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, service, client)
}

// RateLimiter 限流器接口
type RateLimiter interface {
	// Allow 判断指定键在当前窗口内是否放行
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// Limit 限流规则
type Limit struct {
	// 每周期允许请求数
	Rate int
	// 窗口周期
	Period time.Duration
	// 突发容量
	Burst int
}

// Result 限流判定结果
type Result struct {
	Allowed bool
	// 当前窗口剩余配额
	Remaining int
	// 配额重置等待时间
	ResetAfter time.Duration
	// 被拒后建议的重试等待时间
	RetryAfter time.Duration
}

// RedisRateLimiter redis_rate 实现（GCRA 滑动窗口）
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
}

var _ RateLimiter = (*RedisRateLimiter)(nil)

// NewRedisRateLimiter 创建 Redis 限流器
func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
	}
}

// Allow 判断是否放行
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	res, err := r.limiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit.Rate,
		Period: limit.Period,
		Burst:  limit.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
		RetryAfter: res.RetryAfter,
	}, nil
}
