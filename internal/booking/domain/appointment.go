// Package domain 预约服务的领域模型
package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// AppointmentStatus 预约状态
type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

var (
	// ErrAppointmentNotFound 预约不存在
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken 技师在该时间段已有预约
	ErrSlotTaken = errors.New("technician slot already taken")
	// ErrInvalidSlot 时间段非法
	ErrInvalidSlot = errors.New("invalid appointment slot")
	// ErrInvalidTransition 非法的状态流转
	ErrInvalidTransition = errors.New("invalid appointment status transition")
)

// Appointment 预约实体。
// (technician_id, slot_start) 唯一索引保证同一技师同一起始时段只有一条有效预约，
// 这是并发抢占下的最终防线，Redis 占位只用于降低冲突概率。
type Appointment struct {
	gorm.Model
	CustomerID   uint              `gorm:"column:customer_id;index;not null" json:"customer_id"`
	VehicleID    uint              `gorm:"column:vehicle_id;not null" json:"vehicle_id"`
	TechnicianID uint              `gorm:"column:technician_id;uniqueIndex:idx_technician_slot;not null" json:"technician_id"`
	SlotStart    time.Time         `gorm:"column:slot_start;uniqueIndex:idx_technician_slot;not null" json:"slot_start"`
	SlotEnd      time.Time         `gorm:"column:slot_end;not null" json:"slot_end"`
	ServiceType  string            `gorm:"column:service_type;type:varchar(50)" json:"service_type"`
	Status       AppointmentStatus `gorm:"column:status;type:varchar(20);index;not null;default:'scheduled'" json:"status"`
	Notes        string            `gorm:"column:notes;type:text" json:"notes"`
}

// TableName 指定表名
func (Appointment) TableName() string {
	return "appointments"
}

// CanTransition 判断状态流转是否合法
func (a *Appointment) CanTransition(next AppointmentStatus) bool {
	switch a.Status {
	case AppointmentStatusScheduled:
		return next == AppointmentStatusCompleted || next == AppointmentStatusCancelled
	default:
		return false
	}
}

// Query 预约列表查询条件
type Query struct {
	CustomerID   uint
	TechnicianID uint
	Status       AppointmentStatus
	Page         int
	Limit        int
}

// AppointmentRepository 预约仓储
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	Update(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uint) (*Appointment, error)
	List(ctx context.Context, q Query) ([]Appointment, int64, error)
	// ListByTechnicianBetween 查询技师在时间窗内的有效预约（不含已取消）
	ListByTechnicianBetween(ctx context.Context, technicianID uint, from, to time.Time) ([]Appointment, error)
}
