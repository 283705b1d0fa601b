// Package application 工单服务的用例层
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/evservicecenter/internal/event"
	"github.com/wyfcoding/evservicecenter/internal/workorder/domain"
	"github.com/wyfcoding/evservicecenter/pkg/cache"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/metrics"
	"github.com/wyfcoding/evservicecenter/pkg/utils"
)

const (
	detailKeyFmt = "workorder:detail:%d"
	listKeyFmt   = "workorders:list:page:%d:limit:%d:status:%s:customer:%d"
	listPrefix   = "workorders:list:"

	maxPageLimit = 100
)

// ItemInput 用料行输入
type ItemInput struct {
	PartID       uint  `json:"part_id"`
	QuantityUsed int64 `json:"quantity_used"`
}

// CreateCommand 创建工单命令
type CreateCommand struct {
	VehicleID    uint
	CustomerID   uint
	TechnicianID uint
	Description  string
	Items        []ItemInput
}

// ListResult 工单分页响应
type ListResult struct {
	Orders []domain.WorkOrder `json:"orders"`
	Total  int64              `json:"total"`
	Page   int                `json:"page"`
	Limit  int                `json:"limit"`
}

// WorkOrderService 工单用例服务。
// 写路径先提交本地事务，再发布描述变更的信封；订阅方各自独立处理。
type WorkOrderService struct {
	repo    domain.WorkOrderRepository
	bus     event.Bus
	cache   cache.Store
	listTTL time.Duration
	detTTL  time.Duration
	metrics *metrics.Metrics
}

// NewWorkOrderService 创建工单用例服务。metrics 可为 nil。
func NewWorkOrderService(repo domain.WorkOrderRepository, bus event.Bus, store cache.Store, detailTTL, listTTL time.Duration, m *metrics.Metrics) *WorkOrderService {
	return &WorkOrderService{
		repo:    repo,
		bus:     bus,
		cache:   store,
		detTTL:  detailTTL,
		listTTL: listTTL,
		metrics: m,
	}
}

// Create 创建工单，提交后发布 WORKORDER_CREATED
func (s *WorkOrderService) Create(ctx context.Context, cmd CreateCommand) (*domain.WorkOrder, error) {
	order := &domain.WorkOrder{
		VehicleID:    cmd.VehicleID,
		CustomerID:   cmd.CustomerID,
		TechnicianID: cmd.TechnicianID,
		Status:       domain.StatusPending,
		Description:  cmd.Description,
	}
	for _, item := range cmd.Items {
		order.Items = append(order.Items, domain.WorkOrderItem{
			PartID:       item.PartID,
			QuantityUsed: item.QuantityUsed,
		})
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}

	s.publish(ctx, event.TypeWorkOrderCreated, order)
	s.invalidate(ctx, order.ID)
	return order, nil
}

// UpdateStatus 推进工单状态，提交后发布 WORKORDER_UPDATED。
// 完成的工单必须携带用料行，库存消费方以此扣减。
func (s *WorkOrderService) UpdateStatus(ctx context.Context, orderID uint, next domain.Status) (*domain.WorkOrder, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.CanTransition(next) {
		return nil, fmt.Errorf("work order %d %s -> %s: %w",
			orderID, order.Status, next, domain.ErrInvalidTransition)
	}
	if next == domain.StatusCompleted && len(order.Items) == 0 {
		return nil, fmt.Errorf("work order %d: %w", orderID, domain.ErrNoItems)
	}

	order.Status = next
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, err
	}

	if next == domain.StatusCompleted && s.metrics != nil {
		s.metrics.WorkOrdersCompletedTotal.Inc()
	}

	s.publish(ctx, event.TypeWorkOrderUpdated, order)
	s.invalidate(ctx, order.ID)
	return order, nil
}

// UpdateItems 替换工单用料行（仅在完成前允许）
func (s *WorkOrderService) UpdateItems(ctx context.Context, orderID uint, items []ItemInput) (*domain.WorkOrder, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.StatusCompleted || order.Status == domain.StatusCancelled {
		return nil, fmt.Errorf("work order %d is %s: %w", orderID, order.Status, domain.ErrInvalidTransition)
	}

	order.Items = order.Items[:0]
	for _, item := range items {
		order.Items = append(order.Items, domain.WorkOrderItem{
			WorkOrderID:  order.ID,
			PartID:       item.PartID,
			QuantityUsed: item.QuantityUsed,
		})
	}

	if err := s.repo.Update(ctx, order); err != nil {
		return nil, err
	}

	s.invalidate(ctx, order.ID)
	return order, nil
}

// Get 查询工单详情（旁路缓存）
func (s *WorkOrderService) Get(ctx context.Context, orderID uint) (*domain.WorkOrder, error) {
	key := fmt.Sprintf(detailKeyFmt, orderID)

	var cached domain.WorkOrder
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		logger.Warn(ctx, "Cache read failed, falling back to store", "key", key, "error", err)
	} else if hit {
		return &cached, nil
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetJSON(ctx, key, order, s.detTTL); err != nil {
		logger.Warn(ctx, "Cache write failed", "key", key, "error", err)
	}
	return order, nil
}

// List 分页查询工单（旁路缓存）
func (s *WorkOrderService) List(ctx context.Context, page, limit int, status domain.Status, customerID uint) (*ListResult, error) {
	p := utils.NormalizePage(page, limit, maxPageLimit)
	key := fmt.Sprintf(listKeyFmt, p.Page, p.Limit, status, customerID)

	var cached ListResult
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		logger.Warn(ctx, "Cache read failed, falling back to store", "key", key, "error", err)
	} else if hit {
		return &cached, nil
	}

	orders, total, err := s.repo.List(ctx, domain.Query{
		Page:       p.Page,
		Limit:      p.Limit,
		Status:     status,
		CustomerID: customerID,
	})
	if err != nil {
		return nil, err
	}

	result := &ListResult{Orders: orders, Total: total, Page: p.Page, Limit: p.Limit}
	if err := s.cache.SetJSON(ctx, key, result, s.listTTL); err != nil {
		logger.Warn(ctx, "Cache write failed", "key", key, "error", err)
	}
	return result, nil
}

// publish 提交后发布工单事件。发布失败只记录：本地事务已提交，不能回滚
func (s *WorkOrderService) publish(ctx context.Context, t event.Type, order *domain.WorkOrder) {
	payload := event.WorkOrderPayload{
		ID:           order.ID,
		Status:       string(order.Status),
		VehicleID:    order.VehicleID,
		CustomerID:   order.CustomerID,
		TechnicianID: order.TechnicianID,
	}
	for _, item := range order.Items {
		payload.PartsUsed = append(payload.PartsUsed, event.PartUsage{
			PartID:       item.PartID,
			QuantityUsed: item.QuantityUsed,
		})
	}

	var env *event.Envelope
	var err error
	switch t {
	case event.TypeWorkOrderCreated:
		env, err = event.NewWorkOrderCreated(payload)
	default:
		env, err = event.NewWorkOrderUpdated(payload)
	}
	if err != nil {
		logger.Error(ctx, "Failed to build work order event", "work_order_id", order.ID, "error", err)
		return
	}

	key := fmt.Sprintf("workorder-%d", order.ID)
	if err := s.bus.Publish(ctx, event.TopicWorkOrder, key, env); err != nil {
		logger.Error(ctx, "Failed to publish work order event",
			"work_order_id", order.ID,
			"type", t,
			"error", err,
		)
		return
	}
	if s.metrics != nil {
		s.metrics.EventsPublishedTotal.Inc()
	}
}

// invalidate 变更后失效详情键与列表前缀
func (s *WorkOrderService) invalidate(ctx context.Context, orderID uint) {
	if err := s.cache.Delete(ctx, fmt.Sprintf(detailKeyFmt, orderID)); err != nil {
		logger.Warn(ctx, "Failed to invalidate work order detail key", "work_order_id", orderID, "error", err)
	}
	if _, err := s.cache.DeleteByPattern(ctx, listPrefix); err != nil {
		logger.Warn(ctx, "Failed to invalidate work order list keys", "error", err)
	}
}
