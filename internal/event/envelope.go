// Package event 定义服务间异步通知的信封格式与主题。
// 信封为 {type, payload} 标签联合，payload 按 type 对应一个已知变体，
// 构造后不可变，各订阅方独立反序列化。
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type 事件类型判别符
type Type string

const (
	TypeWorkOrderCreated   Type = "WORKORDER_CREATED"
	TypeWorkOrderUpdated   Type = "WORKORDER_UPDATED"
	TypePartLowStock       Type = "PART_LOW_STOCK"
	TypeAppointmentCreated Type = "APPOINTMENT_CREATED"
	TypePaymentSuccessful  Type = "PAYMENT_SUCCESSFUL"
)

// 主题（fanout：每个订阅方都收到每条消息，无路由键过滤）
const (
	TopicWorkOrder = "workorder_events"
	TopicInventory = "inventory_events"
	TopicBooking   = "booking_events"
	TopicPayment   = "payment_events"
)

// ErrTypeMismatch 信封类型与期望的 payload 变体不符
var ErrTypeMismatch = fmt.Errorf("event: envelope type mismatch")

// Envelope 事件信封
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PartUsage 工单消耗的单个配件行
type PartUsage struct {
	PartID       uint  `json:"partId"`
	QuantityUsed int64 `json:"quantityUsed"`
}

// WorkOrderPayload 工单生命周期事件的载荷
type WorkOrderPayload struct {
	ID           uint        `json:"id"`
	Status       string      `json:"status"`
	VehicleID    uint        `json:"vehicleId,omitempty"`
	CustomerID   uint        `json:"customerId,omitempty"`
	TechnicianID uint        `json:"technicianId,omitempty"`
	PartsUsed    []PartUsage `json:"partsUsed,omitempty"`
}

// LowStockPayload 低库存告警事件的载荷
type LowStockPayload struct {
	PartID     uint      `json:"partId"`
	Name       string    `json:"name"`
	PartNumber string    `json:"partNumber"`
	Quantity   int64     `json:"quantity"`
	MinStock   int64     `json:"minStock"`
	Timestamp  time.Time `json:"timestamp"`
}

// AppointmentPayload 预约创建事件的载荷
type AppointmentPayload struct {
	ID           uint      `json:"id"`
	CustomerID   uint      `json:"customerId"`
	VehicleID    uint      `json:"vehicleId"`
	TechnicianID uint      `json:"technicianId"`
	SlotStart    time.Time `json:"slotStart"`
	SlotEnd      time.Time `json:"slotEnd"`
	ServiceType  string    `json:"serviceType"`
}

// PaymentPayload 支付成功事件的载荷
type PaymentPayload struct {
	InvoiceID  uint      `json:"invoiceId"`
	CustomerID uint      `json:"customerId"`
	Amount     string    `json:"amount"`
	PaidAt     time.Time `json:"paidAt"`
}

func newEnvelope(t Type, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("event: failed to marshal %s payload: %w", t, err)
	}
	return &Envelope{Type: t, Payload: data}, nil
}

// NewWorkOrderCreated 构造工单创建事件
func NewWorkOrderCreated(p WorkOrderPayload) (*Envelope, error) {
	return newEnvelope(TypeWorkOrderCreated, p)
}

// NewWorkOrderUpdated 构造工单更新事件
func NewWorkOrderUpdated(p WorkOrderPayload) (*Envelope, error) {
	return newEnvelope(TypeWorkOrderUpdated, p)
}

// NewPartLowStock 构造低库存告警事件
func NewPartLowStock(p LowStockPayload) (*Envelope, error) {
	return newEnvelope(TypePartLowStock, p)
}

// NewAppointmentCreated 构造预约创建事件
func NewAppointmentCreated(p AppointmentPayload) (*Envelope, error) {
	return newEnvelope(TypeAppointmentCreated, p)
}

// NewPaymentSuccessful 构造支付成功事件
func NewPaymentSuccessful(p PaymentPayload) (*Envelope, error) {
	return newEnvelope(TypePaymentSuccessful, p)
}

// WorkOrder 解码工单事件载荷，类型不符返回 ErrTypeMismatch
func (e *Envelope) WorkOrder() (*WorkOrderPayload, error) {
	if e.Type != TypeWorkOrderCreated && e.Type != TypeWorkOrderUpdated {
		return nil, fmt.Errorf("%w: got %s, want work order event", ErrTypeMismatch, e.Type)
	}
	var p WorkOrderPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("event: malformed %s payload: %w", e.Type, err)
	}
	return &p, nil
}

// LowStock 解码低库存告警载荷
func (e *Envelope) LowStock() (*LowStockPayload, error) {
	if e.Type != TypePartLowStock {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrTypeMismatch, e.Type, TypePartLowStock)
	}
	var p LowStockPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("event: malformed %s payload: %w", e.Type, err)
	}
	return &p, nil
}

// Appointment 解码预约创建载荷
func (e *Envelope) Appointment() (*AppointmentPayload, error) {
	if e.Type != TypeAppointmentCreated {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrTypeMismatch, e.Type, TypeAppointmentCreated)
	}
	var p AppointmentPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("event: malformed %s payload: %w", e.Type, err)
	}
	return &p, nil
}

// Payment 解码支付成功载荷
func (e *Envelope) Payment() (*PaymentPayload, error) {
	if e.Type != TypePaymentSuccessful {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrTypeMismatch, e.Type, TypePaymentSuccessful)
	}
	var p PaymentPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("event: malformed %s payload: %w", e.Type, err)
	}
	return &p, nil
}

// Decode 从字节流解析信封，type 缺失或 JSON 非法时报错
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("event: malformed envelope: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("event: envelope missing type")
	}
	return &e, nil
}
