package domain

import "context"

// StockTx 单个事务范围内的库存账本操作。
// 实现必须保证 GetPartForUpdate 持有行锁直至事务结束，
// 使并发触碰同一配件的扣减串行化而不是竞争出负库存。
type StockTx interface {
	// GetPartForUpdate 按行锁加载配件，不存在返回 ErrPartNotFound
	GetPartForUpdate(ctx context.Context, partID uint) (*Part, error)
	// SavePart 持久化配件的数量变更
	SavePart(ctx context.Context, part *Part) error
	// AppendStockLog 追加一条流水
	AppendStockLog(ctx context.Context, log *StockLog) error
	// AppendPartsUsage 追加一条工单用料记录
	AppendPartsUsage(ctx context.Context, usage *PartsUsage) error
	// WorkOrderUsageExists 指定工单是否已有用料记录（重复投递探测）
	WorkOrderUsageExists(ctx context.Context, workOrderID uint) (bool, error)
}

// PartQuery 配件列表查询参数
type PartQuery struct {
	Page         int
	Limit        int
	Search       string
	LowStockOnly bool
}

// PartRepository 配件仓储
type PartRepository interface {
	// InTx 在单个数据库事务内执行 fn，出错整体回滚
	InTx(ctx context.Context, fn func(tx StockTx) error) error

	Create(ctx context.Context, part *Part) error
	Update(ctx context.Context, part *Part) error
	Delete(ctx context.Context, partID uint) error
	GetByID(ctx context.Context, partID uint) (*Part, error)
	List(ctx context.Context, q PartQuery) ([]Part, int64, error)
	// History 分页返回配件的流水（新到旧）
	History(ctx context.Context, partID uint, page, limit int) ([]StockLog, int64, error)
	// UsageStats 按年聚合配件用量
	UsageStats(ctx context.Context, year int) ([]PartUsageStat, error)
	// HasUsage 配件是否被任何用料记录引用
	HasUsage(ctx context.Context, partID uint) (bool, error)
}
