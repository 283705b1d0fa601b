// Package cache 提供旁路缓存（cache-aside）存储抽象与 Redis 实现
package cache

import (
	"context"
	"time"
)

// Store 旁路缓存接口。读路径先查缓存，未命中再回源并写入；
// 任何变更底层数据的写路径或事件消费路径，必须删除受影响的键或键前缀。
type Store interface {
	// Get 获取缓存值，未命中返回空串且无错误
	Get(ctx context.Context, key string) (string, error)
	// GetJSON 获取 JSON 缓存值并反序列化到 dest，未命中时返回 (false, nil)
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	// Set 设置缓存值与 TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// SetJSON 序列化后设置缓存值与 TTL
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Delete 删除指定键
	Delete(ctx context.Context, keys ...string) error
	// DeleteByPattern 按前缀删除键，返回删除数量。
	// 用于无法逐个枚举的列表类键（分页/过滤参数化）。
	DeleteByPattern(ctx context.Context, prefix string) (int64, error)
	// SetNX 仅当 key 不存在时设置值（用于时段占位等互斥场景）
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	// Close 释放底层连接
	Close() error
}
