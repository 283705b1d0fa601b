// Package domain 工单服务的领域模型
package domain

import (
	"errors"

	"gorm.io/gorm"
)

// Status 工单状态
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var (
	// ErrWorkOrderNotFound 工单不存在
	ErrWorkOrderNotFound = errors.New("work order not found")
	// ErrInvalidTransition 非法状态流转
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNoItems 完成工单必须至少有一个用料行或服务项
	ErrNoItems = errors.New("work order has no items")
)

// WorkOrder 工单聚合根
type WorkOrder struct {
	gorm.Model
	// VehicleID 车辆 ID
	VehicleID uint `gorm:"column:vehicle_id;index;not null" json:"vehicle_id"`
	// CustomerID 客户 ID
	CustomerID uint `gorm:"column:customer_id;index;not null" json:"customer_id"`
	// TechnicianID 技师 ID
	TechnicianID uint `gorm:"column:technician_id;index" json:"technician_id"`
	// Status 工单状态
	Status Status `gorm:"column:status;type:varchar(20);index;not null;default:'pending'" json:"status"`
	// Description 故障与维修描述
	Description string `gorm:"column:description;type:text" json:"description"`
	// Items 用料行
	Items []WorkOrderItem `gorm:"foreignKey:WorkOrderID" json:"items"`
}

// WorkOrderItem 工单用料行
type WorkOrderItem struct {
	gorm.Model
	// WorkOrderID 所属工单
	WorkOrderID uint `gorm:"column:work_order_id;index;not null" json:"work_order_id"`
	// PartID 所用配件
	PartID uint `gorm:"column:part_id;not null" json:"part_id"`
	// QuantityUsed 用量
	QuantityUsed int64 `gorm:"column:quantity_used;not null" json:"quantity_used"`
}

// TableName 指定表名
func (WorkOrderItem) TableName() string {
	return "work_order_items"
}

// CanTransition 校验状态流转是否合法
func (w *WorkOrder) CanTransition(next Status) bool {
	switch w.Status {
	case StatusPending:
		return next == StatusInProgress || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}
