// Package application 通知服务的应用层
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/evservicecenter/internal/notification/domain"
	"github.com/wyfcoding/evservicecenter/pkg/cache"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/metrics"
)

const (
	notificationListPrefix = "notifications:list:"
	maxPageLimit           = 100
)

func notificationListKey(userID uint, page, limit int) string {
	return fmt.Sprintf("%suser:%d:page:%d:limit:%d", notificationListPrefix, userID, page, limit)
}

// NotificationListResult 通知列表查询结果
type NotificationListResult struct {
	Items []domain.Notification `json:"items"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

// NotificationService 通知应用服务
type NotificationService struct {
	repo    domain.NotificationRepository
	sender  domain.Sender
	cache   cache.Store
	listTTL time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewNotificationService 创建通知应用服务
func NewNotificationService(repo domain.NotificationRepository, sender domain.Sender, store cache.Store, listTTL time.Duration, m *metrics.Metrics) *NotificationService {
	return &NotificationService{
		repo:    repo,
		sender:  sender,
		cache:   store,
		listTTL: listTTL,
		metrics: m,
		now:     time.Now,
	}
}

// Record 幂等记录并投递一条通知。
// NaturalKey 冲突视为重复投递：不重复发送、直接返回成功。
// 发送器失败不向上传播，通知停留在 FAILED 状态等待人工处理。
func (s *NotificationService) Record(ctx context.Context, n *domain.Notification) error {
	created, err := s.repo.Upsert(ctx, n)
	if err != nil {
		return fmt.Errorf("upsert notification: %w", err)
	}
	if !created {
		logger.Info(ctx, "Duplicate notification delivery skipped", "natural_key", n.NaturalKey)
		return nil
	}

	if err := s.sender.Send(ctx, n.Target, n.Subject, n.Content); err != nil {
		logger.Error(ctx, "Notification send failed", "natural_key", n.NaturalKey, "error", err)
		if uerr := s.repo.UpdateStatus(ctx, n.NaturalKey, domain.NotificationStatusFailed, err.Error(), nil); uerr != nil {
			logger.Error(ctx, "Failed to mark notification failed", "natural_key", n.NaturalKey, "error", uerr)
		}
	} else {
		sentAt := s.now()
		if uerr := s.repo.UpdateStatus(ctx, n.NaturalKey, domain.NotificationStatusSent, "", &sentAt); uerr != nil {
			logger.Error(ctx, "Failed to mark notification sent", "natural_key", n.NaturalKey, "error", uerr)
		}
	}

	s.invalidateList(ctx)
	return nil
}

// GetNotification 按 ID 查询通知
func (s *NotificationService) GetNotification(ctx context.Context, id uint) (*domain.Notification, error) {
	return s.repo.GetByID(ctx, id)
}

// ListNotifications 分页查询通知（cache-aside）
func (s *NotificationService) ListNotifications(ctx context.Context, userID uint, page, limit int) (*NotificationListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageLimit {
		limit = 20
	}

	key := notificationListKey(userID, page, limit)
	var cached NotificationListResult
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		logger.Warn(ctx, "Notification list cache read failed", "key", key, "error", err)
	} else if hit {
		s.metrics.CacheHitsTotal.Inc()
		return &cached, nil
	}
	s.metrics.CacheMissesTotal.Inc()

	items, total, err := s.repo.List(ctx, userID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	result := &NotificationListResult{Items: items, Total: total, Page: page, Limit: limit}

	if err := s.cache.SetJSON(ctx, key, result, s.listTTL); err != nil {
		logger.Warn(ctx, "Notification list cache write failed", "key", key, "error", err)
	}
	return result, nil
}

func (s *NotificationService) invalidateList(ctx context.Context) {
	if _, err := s.cache.DeleteByPattern(ctx, notificationListPrefix); err != nil {
		logger.Warn(ctx, "Notification list cache invalidation failed", "error", err)
		return
	}
	s.metrics.CacheInvalidationsTotal.Inc()
}
