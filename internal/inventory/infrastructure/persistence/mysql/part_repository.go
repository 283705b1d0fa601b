// Package mysql 库存服务的 MySQL 仓储实现
package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/evservicecenter/internal/inventory/domain"
	"github.com/wyfcoding/evservicecenter/pkg/db"
)

// PartRepository MySQL 配件仓储
type PartRepository struct {
	db *db.DB
}

var _ domain.PartRepository = (*PartRepository)(nil)

// NewPartRepository 创建 MySQL 配件仓储
func NewPartRepository(database *db.DB) *PartRepository {
	return &PartRepository{db: database}
}

// stockTx 事务范围内的账本操作
type stockTx struct {
	tx *gorm.DB
}

var _ domain.StockTx = (*stockTx)(nil)

// GetPartForUpdate 以 SELECT ... FOR UPDATE 加载配件行
func (s *stockTx) GetPartForUpdate(ctx context.Context, partID uint) (*domain.Part, error) {
	var part domain.Part
	err := s.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&part, partID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("part %d: %w", partID, domain.ErrPartNotFound)
		}
		return nil, fmt.Errorf("failed to lock part %d: %w", partID, err)
	}
	return &part, nil
}

func (s *stockTx) SavePart(ctx context.Context, part *domain.Part) error {
	return s.tx.WithContext(ctx).Save(part).Error
}

func (s *stockTx) AppendStockLog(ctx context.Context, log *domain.StockLog) error {
	return s.tx.WithContext(ctx).Create(log).Error
}

func (s *stockTx) AppendPartsUsage(ctx context.Context, usage *domain.PartsUsage) error {
	return s.tx.WithContext(ctx).Create(usage).Error
}

func (s *stockTx) WorkOrderUsageExists(ctx context.Context, workOrderID uint) (bool, error) {
	var count int64
	err := s.tx.WithContext(ctx).
		Model(&domain.PartsUsage{}).
		Where("work_order_id = ?", workOrderID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InTx 在单个事务内执行 fn，出错整体回滚
func (r *PartRepository) InTx(ctx context.Context, fn func(tx domain.StockTx) error) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(&stockTx{tx: tx})
	})
}

// Create 创建配件，编号冲突返回 ErrDuplicatePartNumber
func (r *PartRepository) Create(ctx context.Context, part *domain.Part) error {
	err := r.db.WithContext(ctx).Create(part).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicatePartNumber
	}
	return err
}

// Update 更新配件的基本属性
func (r *PartRepository) Update(ctx context.Context, part *domain.Part) error {
	return r.db.WithContext(ctx).Save(part).Error
}

// Delete 软删除配件
func (r *PartRepository) Delete(ctx context.Context, partID uint) error {
	result := r.db.WithContext(ctx).Delete(&domain.Part{}, partID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrPartNotFound
	}
	return nil
}

// GetByID 按主键查询配件
func (r *PartRepository) GetByID(ctx context.Context, partID uint) (*domain.Part, error) {
	var part domain.Part
	err := r.db.WithContext(ctx).First(&part, partID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("part %d: %w", partID, domain.ErrPartNotFound)
		}
		return nil, err
	}
	return &part, nil
}

// List 分页查询配件，支持名称/编号搜索与低库存过滤
func (r *PartRepository) List(ctx context.Context, q domain.PartQuery) ([]domain.Part, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Part{})

	if q.Search != "" {
		like := "%" + q.Search + "%"
		query = query.Where("name LIKE ? OR part_number LIKE ?", like, like)
	}
	if q.LowStockOnly {
		query = query.Where("quantity <= min_stock")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var parts []domain.Part
	err := query.
		Order("id DESC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&parts).Error
	if err != nil {
		return nil, 0, err
	}
	return parts, total, nil
}

// History 分页返回配件流水（新到旧）
func (r *PartRepository) History(ctx context.Context, partID uint, page, limit int) ([]domain.StockLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.StockLog{}).Where("part_id = ?", partID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []domain.StockLog
	err := query.
		Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// UsageStats 按年聚合配件用量
func (r *PartRepository) UsageStats(ctx context.Context, year int) ([]domain.PartUsageStat, error) {
	var stats []domain.PartUsageStat
	err := r.db.WithContext(ctx).
		Model(&domain.PartsUsage{}).
		Select("parts_usages.part_id, parts.name, parts.part_number, SUM(parts_usages.quantity_used) AS total_used").
		Joins("JOIN parts ON parts.id = parts_usages.part_id").
		Where("YEAR(parts_usages.created_at) = ?", year).
		Group("parts_usages.part_id, parts.name, parts.part_number").
		Order("total_used DESC").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// HasUsage 配件是否被用料记录引用
func (r *PartRepository) HasUsage(ctx context.Context, partID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.PartsUsage{}).
		Where("part_id = ?", partID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
