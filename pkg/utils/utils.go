// Package utils 提供分页归一化、固定间隔重试、hash 等通用工具
package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Pagination 归一化后的分页参数
type Pagination struct {
	Page  int
	Limit int
}

// Offset 计算查询偏移
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// NormalizePage 归一化分页参数。
// 缓存键由归一化参数推导，相同请求必须命中同一条目，非法值一律收敛到默认值。
func NormalizePage(page, limit, maxLimit int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return Pagination{Page: page, Limit: limit}
}

// NormalizeSearch 归一化搜索词（小写、去首尾空白）
func NormalizeSearch(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Retry 固定间隔重试，attempts 次内成功则返回 nil，context 取消立即退出
func Retry(ctx context.Context, attempts int, interval time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return err
}

// SHA256Hash 计算 SHA256 哈希
func SHA256Hash(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
