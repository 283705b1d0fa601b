// Package mysql 通知仓储的 MySQL 实现
package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/evservicecenter/internal/notification/domain"
	"github.com/wyfcoding/evservicecenter/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationRepository 通知仓储实现
type NotificationRepository struct {
	db *db.DB
}

var _ domain.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository 创建通知仓储
func NewNotificationRepository(database *db.DB) *NotificationRepository {
	return &NotificationRepository{db: database}
}

// Upsert 按 natural_key 插入，冲突时忽略。RowsAffected 为 0 表示重复投递。
func (r *NotificationRepository) Upsert(ctx context.Context, n *domain.Notification) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "natural_key"}},
			DoNothing: true,
		}).
		Create(n)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateStatus 按 natural_key 更新发送状态
func (r *NotificationRepository) UpdateStatus(ctx context.Context, naturalKey string, status domain.NotificationStatus, errorMessage string, sentAt *time.Time) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
		"sent_at":       sentAt,
	}
	result := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("natural_key = ?", naturalKey).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

// GetByID 按 ID 查询通知
func (r *NotificationRepository) GetByID(ctx context.Context, id uint) (*domain.Notification, error) {
	var n domain.Notification
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

// List 分页查询通知列表
func (r *NotificationRepository) List(ctx context.Context, userID uint, page, limit int) ([]domain.Notification, int64, error) {
	var (
		items []domain.Notification
		total int64
	)
	query := r.db.WithContext(ctx).Model(&domain.Notification{})
	if userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
