package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/evservicecenter/internal/event"
	"github.com/wyfcoding/evservicecenter/internal/inventory/domain"
	"github.com/wyfcoding/evservicecenter/pkg/cache"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/metrics"
)

// StockCommandService 库存写用例。
// 所有数量变更走同一条路径：行锁、校验、记账、整批提交或整批回滚；
// 提交后才发布低库存告警并失效相关缓存键。
type StockCommandService struct {
	repo    domain.PartRepository
	bus     event.Bus
	cache   cache.Store
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewStockCommandService 创建库存写用例服务。metrics 可为 nil。
func NewStockCommandService(repo domain.PartRepository, bus event.Bus, store cache.Store, m *metrics.Metrics) *StockCommandService {
	return &StockCommandService{
		repo:    repo,
		bus:     bus,
		cache:   store,
		metrics: m,
		now:     time.Now,
	}
}

// ApplyWorkOrderCompleted 消费"工单完成"事件，对全部用料行做事务性扣减。
// 任一行校验失败（配件不存在、数量非正、库存不足）则整批回滚，
// 不存在部分扣减；同一工单的重复投递在事务内探测并跳过。
func (s *StockCommandService) ApplyWorkOrderCompleted(ctx context.Context, payload *event.WorkOrderPayload) error {
	if payload.Status != "completed" {
		return nil
	}
	if len(payload.PartsUsed) == 0 {
		return nil
	}

	var alerts []domain.LowStockAlert
	var duplicate bool
	affected := make([]uint, 0, len(payload.PartsUsed))

	err := s.repo.InTx(ctx, func(tx domain.StockTx) error {
		exists, err := tx.WorkOrderUsageExists(ctx, payload.ID)
		if err != nil {
			return fmt.Errorf("failed to probe usage for work order %d: %w", payload.ID, err)
		}
		if exists {
			duplicate = true
			return nil
		}

		for _, item := range payload.PartsUsed {
			if item.QuantityUsed <= 0 {
				return fmt.Errorf("work order %d part %d quantity %d: %w",
					payload.ID, item.PartID, item.QuantityUsed, domain.ErrInvalidQuantity)
			}

			part, err := tx.GetPartForUpdate(ctx, item.PartID)
			if err != nil {
				return fmt.Errorf("work order %d: %w", payload.ID, err)
			}

			if part.Quantity < item.QuantityUsed {
				return fmt.Errorf("work order %d part %d has %d, needs %d: %w",
					payload.ID, item.PartID, part.Quantity, item.QuantityUsed, domain.ErrInsufficientStock)
			}

			wasAboveMin := part.Quantity > part.MinStock
			part.Quantity -= item.QuantityUsed

			if err := tx.SavePart(ctx, part); err != nil {
				return fmt.Errorf("failed to save part %d: %w", part.ID, err)
			}
			if err := tx.AppendStockLog(ctx, &domain.StockLog{
				PartID:     part.ID,
				ChangeType: domain.ChangeTypeOut,
				Quantity:   item.QuantityUsed,
				Reason:     fmt.Sprintf("work order %d", payload.ID),
			}); err != nil {
				return fmt.Errorf("failed to append stock log for part %d: %w", part.ID, err)
			}
			if err := tx.AppendPartsUsage(ctx, &domain.PartsUsage{
				WorkOrderID:  payload.ID,
				PartID:       part.ID,
				QuantityUsed: item.QuantityUsed,
			}); err != nil {
				return fmt.Errorf("failed to append usage for part %d: %w", part.ID, err)
			}

			// 仅在本次扣减造成从水位之上跌到水位及以下时收集告警，提交后发布
			if wasAboveMin && part.BelowMinStock() {
				alerts = append(alerts, domain.LowStockAlert{
					PartID:     part.ID,
					Name:       part.Name,
					PartNumber: part.PartNumber,
					Quantity:   part.Quantity,
					MinStock:   part.MinStock,
					OccurredAt: s.now(),
				})
			}
			affected = append(affected, part.ID)
		}
		return nil
	})

	if err != nil {
		// 整批已回滚；记录足够的上下文供人工对账，不自动重入队
		logger.Error(ctx, "Stock deduction rolled back",
			"work_order_id", payload.ID,
			"items", len(payload.PartsUsed),
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.StockDeductionRejects.Inc()
		}
		return err
	}

	if duplicate {
		logger.Info(ctx, "Duplicate work order event skipped",
			"work_order_id", payload.ID,
		)
		return nil
	}

	if s.metrics != nil {
		s.metrics.StockDeductionsTotal.Inc()
	}

	s.publishLowStockAlerts(ctx, alerts)
	s.invalidateAfterStockChange(ctx, affected)

	return nil
}

// AdjustStock 人工出入库。与事件扣减走同一把行锁，出库同样收集低库存告警。
func (s *StockCommandService) AdjustStock(ctx context.Context, partID uint, changeType domain.ChangeType, quantity int64, reason string) (*domain.Part, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("part %d quantity %d: %w", partID, quantity, domain.ErrInvalidQuantity)
	}

	var result *domain.Part
	var alerts []domain.LowStockAlert

	err := s.repo.InTx(ctx, func(tx domain.StockTx) error {
		part, err := tx.GetPartForUpdate(ctx, partID)
		if err != nil {
			return err
		}

		switch changeType {
		case domain.ChangeTypeIn:
			part.Quantity += quantity
		case domain.ChangeTypeOut:
			if part.Quantity < quantity {
				return fmt.Errorf("part %d has %d, needs %d: %w",
					partID, part.Quantity, quantity, domain.ErrInsufficientStock)
			}
			wasAboveMin := part.Quantity > part.MinStock
			part.Quantity -= quantity
			if wasAboveMin && part.BelowMinStock() {
				alerts = append(alerts, domain.LowStockAlert{
					PartID:     part.ID,
					Name:       part.Name,
					PartNumber: part.PartNumber,
					Quantity:   part.Quantity,
					MinStock:   part.MinStock,
					OccurredAt: s.now(),
				})
			}
		default:
			return fmt.Errorf("unknown change type %q", changeType)
		}

		if err := tx.SavePart(ctx, part); err != nil {
			return err
		}
		if err := tx.AppendStockLog(ctx, &domain.StockLog{
			PartID:     part.ID,
			ChangeType: changeType,
			Quantity:   quantity,
			Reason:     reason,
		}); err != nil {
			return err
		}

		result = part
		return nil
	})
	if err != nil {
		logger.Error(ctx, "Stock adjustment failed",
			"part_id", partID,
			"change_type", changeType,
			"quantity", quantity,
			"error", err,
		)
		return nil, err
	}

	s.publishLowStockAlerts(ctx, alerts)
	s.invalidateAfterStockChange(ctx, []uint{partID})

	return result, nil
}

// CreatePart 创建配件
func (s *StockCommandService) CreatePart(ctx context.Context, part *domain.Part) error {
	if part.Quantity < 0 || part.MinStock < 0 {
		return domain.ErrInvalidQuantity
	}
	if err := s.repo.Create(ctx, part); err != nil {
		return err
	}
	// 初始入库也记账，保证流水与数量恒等
	if part.Quantity > 0 {
		err := s.repo.InTx(ctx, func(tx domain.StockTx) error {
			return tx.AppendStockLog(ctx, &domain.StockLog{
				PartID:     part.ID,
				ChangeType: domain.ChangeTypeIn,
				Quantity:   part.Quantity,
				Reason:     "initial intake",
			})
		})
		if err != nil {
			return err
		}
	}
	s.invalidateLists(ctx)
	return nil
}

// UpdatePart 更新配件基础属性（名称、编号、水位、单价）。
// 数量不在此处变更，数量只能通过记账路径变动。
func (s *StockCommandService) UpdatePart(ctx context.Context, partID uint, name, partNumber string, minStock, unitPrice int64) (*domain.Part, error) {
	part, err := s.repo.GetByID(ctx, partID)
	if err != nil {
		return nil, err
	}
	if minStock < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	part.Name = name
	part.PartNumber = partNumber
	part.MinStock = minStock
	part.UnitPrice = unitPrice

	if err := s.repo.Update(ctx, part); err != nil {
		return nil, err
	}

	s.invalidatePart(ctx, partID)
	s.invalidateLists(ctx)
	return part, nil
}

// DeletePart 删除配件；存在用料历史的配件拒绝删除
func (s *StockCommandService) DeletePart(ctx context.Context, partID uint) error {
	used, err := s.repo.HasUsage(ctx, partID)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("part %d: %w", partID, domain.ErrPartInUse)
	}
	if err := s.repo.Delete(ctx, partID); err != nil {
		return err
	}
	s.invalidatePart(ctx, partID)
	s.invalidateLists(ctx)
	if _, err := s.cache.DeleteByPattern(ctx, partHistoryKeyPrefix(partID)); err != nil {
		logger.Warn(ctx, "Failed to invalidate history keys", "part_id", partID, "error", err)
	}
	return nil
}

// IsBusinessError 业务规则错误（库存不足、配件不存在、数量非正、重复编号）。
// 业务错误对当前事务是致命的，但重投只会再次失败，无需重试。
func IsBusinessError(err error) bool {
	return errors.Is(err, domain.ErrInsufficientStock) ||
		errors.Is(err, domain.ErrPartNotFound) ||
		errors.Is(err, domain.ErrInvalidQuantity) ||
		errors.Is(err, domain.ErrDuplicatePartNumber) ||
		errors.Is(err, domain.ErrPartInUse)
}

// publishLowStockAlerts 提交后发布低库存事件。
// 发布失败只记录：账本已提交，不能因为告警失败而回滚
func (s *StockCommandService) publishLowStockAlerts(ctx context.Context, alerts []domain.LowStockAlert) {
	for _, alert := range alerts {
		env, err := event.NewPartLowStock(event.LowStockPayload{
			PartID:     alert.PartID,
			Name:       alert.Name,
			PartNumber: alert.PartNumber,
			Quantity:   alert.Quantity,
			MinStock:   alert.MinStock,
			Timestamp:  alert.OccurredAt,
		})
		if err != nil {
			logger.Error(ctx, "Failed to build low stock event", "part_id", alert.PartID, "error", err)
			continue
		}
		key := fmt.Sprintf("part-%d", alert.PartID)
		if err := s.bus.Publish(ctx, event.TopicInventory, key, env); err != nil {
			logger.Error(ctx, "Failed to publish low stock event",
				"part_id", alert.PartID,
				"error", err,
			)
			continue
		}
		if s.metrics != nil {
			s.metrics.LowStockAlertsTotal.Inc()
			s.metrics.EventsPublishedTotal.Inc()
		}
		logger.Warn(ctx, "Low stock alert emitted",
			"part_id", alert.PartID,
			"part_number", alert.PartNumber,
			"quantity", alert.Quantity,
			"min_stock", alert.MinStock,
		)
	}
}

// invalidateAfterStockChange 数量变更后失效详情、历史、列表与统计键
func (s *StockCommandService) invalidateAfterStockChange(ctx context.Context, partIDs []uint) {
	for _, id := range partIDs {
		s.invalidatePart(ctx, id)
		if _, err := s.cache.DeleteByPattern(ctx, partHistoryKeyPrefix(id)); err != nil {
			logger.Warn(ctx, "Failed to invalidate history keys", "part_id", id, "error", err)
		}
	}
	s.invalidateLists(ctx)
}

func (s *StockCommandService) invalidatePart(ctx context.Context, partID uint) {
	if err := s.cache.Delete(ctx, partDetailKey(partID)); err != nil {
		logger.Warn(ctx, "Failed to invalidate part detail key", "part_id", partID, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.CacheInvalidationsTotal.Inc()
	}
}

func (s *StockCommandService) invalidateLists(ctx context.Context) {
	for _, prefix := range []string{partsListPrefix, partsStatsPrefix} {
		n, err := s.cache.DeleteByPattern(ctx, prefix)
		if err != nil {
			logger.Warn(ctx, "Failed to invalidate keys by prefix", "prefix", prefix, "error", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.CacheInvalidationsTotal.Add(float64(n))
		}
	}
}
