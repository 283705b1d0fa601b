// Package mysql 预约仓储的 MySQL 实现
package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/evservicecenter/internal/booking/domain"
	"github.com/wyfcoding/evservicecenter/pkg/db"
	"gorm.io/gorm"
)

// AppointmentRepository 预约仓储实现
type AppointmentRepository struct {
	db *db.DB
}

var _ domain.AppointmentRepository = (*AppointmentRepository)(nil)

// NewAppointmentRepository 创建预约仓储
func NewAppointmentRepository(database *db.DB) *AppointmentRepository {
	return &AppointmentRepository{db: database}
}

// Create 持久化新预约。唯一索引冲突映射为 ErrSlotTaken。
func (r *AppointmentRepository) Create(ctx context.Context, a *domain.Appointment) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrSlotTaken
		}
		return err
	}
	return nil
}

// Update 保存预约变更
func (r *AppointmentRepository) Update(ctx context.Context, a *domain.Appointment) error {
	return r.db.WithContext(ctx).Save(a).Error
}

// GetByID 按 ID 查询预约
func (r *AppointmentRepository) GetByID(ctx context.Context, id uint) (*domain.Appointment, error) {
	var a domain.Appointment
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// List 分页查询预约列表
func (r *AppointmentRepository) List(ctx context.Context, q domain.Query) ([]domain.Appointment, int64, error) {
	var (
		items []domain.Appointment
		total int64
	)
	query := r.db.WithContext(ctx).Model(&domain.Appointment{})
	if q.CustomerID > 0 {
		query = query.Where("customer_id = ?", q.CustomerID)
	}
	if q.TechnicianID > 0 {
		query = query.Where("technician_id = ?", q.TechnicianID)
	}
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (q.Page - 1) * q.Limit
	if err := query.Order("slot_start ASC").Offset(offset).Limit(q.Limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListByTechnicianBetween 查询技师在时间窗内的有效预约
func (r *AppointmentRepository) ListByTechnicianBetween(ctx context.Context, technicianID uint, from, to time.Time) ([]domain.Appointment, error) {
	var items []domain.Appointment
	err := r.db.WithContext(ctx).
		Where("technician_id = ? AND slot_start >= ? AND slot_start < ? AND status <> ?",
			technicianID, from, to, domain.AppointmentStatusCancelled).
		Order("slot_start ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
