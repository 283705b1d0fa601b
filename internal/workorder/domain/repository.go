package domain

import "context"

// Query 工单列表查询参数
type Query struct {
	Page       int
	Limit      int
	Status     Status
	CustomerID uint
}

// WorkOrderRepository 工单仓储
type WorkOrderRepository interface {
	Create(ctx context.Context, order *WorkOrder) error
	Update(ctx context.Context, order *WorkOrder) error
	GetByID(ctx context.Context, orderID uint) (*WorkOrder, error)
	List(ctx context.Context, q Query) ([]WorkOrder, int64, error)
}
