// Package mysql 工单服务的 MySQL 仓储实现
package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/evservicecenter/internal/workorder/domain"
	"github.com/wyfcoding/evservicecenter/pkg/db"
)

// WorkOrderRepository MySQL 工单仓储
type WorkOrderRepository struct {
	db *db.DB
}

var _ domain.WorkOrderRepository = (*WorkOrderRepository)(nil)

// NewWorkOrderRepository 创建 MySQL 工单仓储
func NewWorkOrderRepository(database *db.DB) *WorkOrderRepository {
	return &WorkOrderRepository{db: database}
}

// Create 创建工单及其用料行
func (r *WorkOrderRepository) Create(ctx context.Context, order *domain.WorkOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// Update 保存工单及其用料行
func (r *WorkOrderRepository) Update(ctx context.Context, order *domain.WorkOrder) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Save(order).Error; err != nil {
			return err
		}
		// 用料行整体替换
		if err := tx.Where("work_order_id = ?", order.ID).Delete(&domain.WorkOrderItem{}).Error; err != nil {
			return err
		}
		for i := range order.Items {
			order.Items[i].ID = 0
			order.Items[i].WorkOrderID = order.ID
		}
		if len(order.Items) > 0 {
			if err := tx.Create(&order.Items).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID 按主键查询工单（含用料行）
func (r *WorkOrderRepository) GetByID(ctx context.Context, orderID uint) (*domain.WorkOrder, error) {
	var order domain.WorkOrder
	err := r.db.WithContext(ctx).Preload("Items").First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("work order %d: %w", orderID, domain.ErrWorkOrderNotFound)
		}
		return nil, err
	}
	return &order, nil
}

// List 分页查询工单
func (r *WorkOrderRepository) List(ctx context.Context, q domain.Query) ([]domain.WorkOrder, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.WorkOrder{})

	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.CustomerID != 0 {
		query = query.Where("customer_id = ?", q.CustomerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []domain.WorkOrder
	err := query.
		Preload("Items").
		Order("id DESC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
