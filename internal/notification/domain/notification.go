// Package domain 通知服务的领域模型
package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// NotificationType 通知类型
type NotificationType string

const (
	NotificationTypeEmail   NotificationType = "EMAIL"   // 邮件通知
	NotificationTypeWebhook NotificationType = "WEBHOOK" // Webhook 通知
	NotificationTypeInApp   NotificationType = "IN_APP"  // 应用内通知
)

// NotificationStatus 通知状态
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "PENDING"
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
)

// ErrNotificationNotFound 通知不存在
var ErrNotificationNotFound = errors.New("notification not found")

// Notification 通知实体。
// NaturalKey 由事件自然标识推导（如 workorder:42:completed），唯一索引保证
// 同一事件重复投递只产生一条记录。
type Notification struct {
	gorm.Model
	// NaturalKey 幂等键
	NaturalKey string `gorm:"column:natural_key;type:varchar(64);uniqueIndex;not null" json:"natural_key"`
	// UserID 接收用户 ID（0 表示面向运营的系统通知）
	UserID uint `gorm:"column:user_id;index" json:"user_id"`
	// Type 通知类型
	Type NotificationType `gorm:"column:type;type:varchar(20);not null" json:"type"`
	// Subject 通知主题
	Subject string `gorm:"column:subject;type:varchar(200)" json:"subject"`
	// Content 通知内容
	Content string `gorm:"column:content;type:text" json:"content"`
	// Target 通知目标：邮箱、webhook 地址，或应用内收件箱 user:<id>
	Target string `gorm:"column:target;type:varchar(200)" json:"target"`
	// Status 通知状态
	Status NotificationStatus `gorm:"column:status;type:varchar(20);index;not null;default:'PENDING'" json:"status"`
	// ErrorMessage 发送失败原因
	ErrorMessage string `gorm:"column:error_message;type:text" json:"error_message"`
	// SentAt 发送时间
	SentAt *time.Time `gorm:"column:sent_at;type:datetime" json:"sent_at"`
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}

// Sender 外部通道发送器
type Sender interface {
	Send(ctx context.Context, target, subject, content string) error
}

// NotificationRepository 通知仓储
type NotificationRepository interface {
	// Upsert 按 NaturalKey 插入或忽略，返回是否为新记录
	Upsert(ctx context.Context, n *Notification) (bool, error)
	// UpdateStatus 按 NaturalKey 更新发送状态
	UpdateStatus(ctx context.Context, naturalKey string, status NotificationStatus, errorMessage string, sentAt *time.Time) error
	GetByID(ctx context.Context, id uint) (*Notification, error)
	List(ctx context.Context, userID uint, page, limit int) ([]Notification, int64, error)
}
