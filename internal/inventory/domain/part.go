// Package domain 库存服务的领域模型：配件、库存流水、工单用料
package domain

import (
	"time"

	"gorm.io/gorm"
)

// ChangeType 库存变动类型
type ChangeType string

const (
	ChangeTypeIn  ChangeType = "IN"  // 入库
	ChangeTypeOut ChangeType = "OUT" // 出库
)

// Part 配件实体。
// 不变量：Quantity 永不为负，且只能通过记账的流水变动。
type Part struct {
	gorm.Model
	// Name 配件名称
	Name string `gorm:"column:name;type:varchar(100);not null" json:"name"`
	// PartNumber 配件编号（唯一）
	PartNumber string `gorm:"column:part_number;type:varchar(64);uniqueIndex;not null" json:"part_number"`
	// Quantity 现存数量
	Quantity int64 `gorm:"column:quantity;not null;default:0" json:"quantity"`
	// MinStock 最低库存水位，跌破时触发低库存告警
	MinStock int64 `gorm:"column:min_stock;not null;default:0" json:"min_stock"`
	// UnitPrice 单价（分）
	UnitPrice int64 `gorm:"column:unit_price;not null;default:0" json:"unit_price"`
}

// BelowMinStock 当前数量是否处于最低水位及以下
func (p *Part) BelowMinStock() bool {
	return p.Quantity <= p.MinStock
}

// StockLog 库存流水，只追加的审计记录。
// 不变量：某配件全部流水的带符号数量之和等于其当前 Quantity（最终一致）。
type StockLog struct {
	gorm.Model
	// PartID 所属配件
	PartID uint `gorm:"column:part_id;index;not null" json:"part_id"`
	// ChangeType 变动方向
	ChangeType ChangeType `gorm:"column:change_type;type:varchar(10);not null" json:"change_type"`
	// Quantity 变动数量（恒为正，方向由 ChangeType 表达）
	Quantity int64 `gorm:"column:quantity;not null" json:"quantity"`
	// Reason 变动原因（如工单编号）
	Reason string `gorm:"column:reason;type:varchar(200)" json:"reason"`
}

// TableName 指定表名
func (StockLog) TableName() string {
	return "stock_logs"
}

// PartsUsage 工单用料记录。
// (work_order_id, part_id) 唯一：同一事件重复投递不会产生重复用料。
type PartsUsage struct {
	gorm.Model
	// WorkOrderID 消耗配件的工单
	WorkOrderID uint `gorm:"column:work_order_id;uniqueIndex:idx_workorder_part;not null" json:"work_order_id"`
	// PartID 被消耗的配件
	PartID uint `gorm:"column:part_id;uniqueIndex:idx_workorder_part;index;not null" json:"part_id"`
	// QuantityUsed 消耗数量
	QuantityUsed int64 `gorm:"column:quantity_used;not null" json:"quantity_used"`
}

// TableName 指定表名
func (PartsUsage) TableName() string {
	return "parts_usages"
}

// PartUsageStat 年度用料统计行
type PartUsageStat struct {
	PartID     uint   `json:"part_id"`
	Name       string `json:"name"`
	PartNumber string `json:"part_number"`
	TotalUsed  int64  `json:"total_used"`
}

// LowStockAlert 扣减导致跌破最低水位时收集的告警，提交后才发布
type LowStockAlert struct {
	PartID     uint
	Name       string
	PartNumber string
	Quantity   int64
	MinStock   int64
	OccurredAt time.Time
}
