// Package mysql 账单仓储的 MySQL 实现
package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/evservicecenter/internal/finance/domain"
	"github.com/wyfcoding/evservicecenter/pkg/db"
	"gorm.io/gorm"
)

// InvoiceRepository 账单仓储实现
type InvoiceRepository struct {
	db *db.DB
}

var _ domain.InvoiceRepository = (*InvoiceRepository)(nil)

// NewInvoiceRepository 创建账单仓储
func NewInvoiceRepository(database *db.DB) *InvoiceRepository {
	return &InvoiceRepository{db: database}
}

// Create 持久化账单及明细行
func (r *InvoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

// Update 保存账单变更（明细行不变，只更新头部字段）
func (r *InvoiceRepository) Update(ctx context.Context, inv *domain.Invoice) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Omit("Items").Save(inv).Error
	})
}

// GetByID 按 ID 查询账单（含明细行）
func (r *InvoiceRepository) GetByID(ctx context.Context, id uint) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := r.db.WithContext(ctx).Preload("Items").First(&inv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// List 分页查询账单列表
func (r *InvoiceRepository) List(ctx context.Context, q domain.Query) ([]domain.Invoice, int64, error) {
	var (
		items []domain.Invoice
		total int64
	)
	query := r.db.WithContext(ctx).Model(&domain.Invoice{})
	if q.CustomerID > 0 {
		query = query.Where("customer_id = ?", q.CustomerID)
	}
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (q.Page - 1) * q.Limit
	if err := query.Preload("Items").Order("created_at DESC").Offset(offset).Limit(q.Limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
