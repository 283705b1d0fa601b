// Package domain 财务服务的领域模型
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus 账单状态
type InvoiceStatus string

const (
	InvoiceStatusUnpaid InvoiceStatus = "unpaid"
	InvoiceStatusPaid   InvoiceStatus = "paid"
	InvoiceStatusVoid   InvoiceStatus = "void"
)

var (
	// ErrInvoiceNotFound 账单不存在
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrInvoiceNotPayable 账单不处于可支付状态
	ErrInvoiceNotPayable = errors.New("invoice is not payable")
	// ErrNoLineItems 账单缺少明细行
	ErrNoLineItems = errors.New("invoice has no line items")
	// ErrInvalidAmount 金额非法
	ErrInvalidAmount = errors.New("invalid line item amount")
)

// Invoice 账单实体。金额使用 decimal 避免浮点误差。
type Invoice struct {
	gorm.Model
	CustomerID  uint            `gorm:"column:customer_id;index;not null" json:"customer_id"`
	WorkOrderID uint            `gorm:"column:work_order_id;index" json:"work_order_id"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Status      InvoiceStatus   `gorm:"column:status;type:varchar(20);index;not null;default:'unpaid'" json:"status"`
	PaidAt      *time.Time      `gorm:"column:paid_at;type:datetime" json:"paid_at"`
	Items       []InvoiceItem   `gorm:"foreignKey:InvoiceID" json:"items"`
}

// TableName 指定表名
func (Invoice) TableName() string {
	return "invoices"
}

// InvoiceItem 账单明细行
type InvoiceItem struct {
	gorm.Model
	InvoiceID   uint            `gorm:"column:invoice_id;index;not null" json:"invoice_id"`
	Description string          `gorm:"column:description;type:varchar(200);not null" json:"description"`
	Quantity    int64           `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:decimal(18,2);not null" json:"unit_price"`
}

// TableName 指定表名
func (InvoiceItem) TableName() string {
	return "invoice_items"
}

// Subtotal 明细行小计
func (i *InvoiceItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// Payable 账单是否可支付
func (inv *Invoice) Payable() bool {
	return inv.Status == InvoiceStatusUnpaid
}

// Query 账单列表查询条件
type Query struct {
	CustomerID uint
	Status     InvoiceStatus
	Page       int
	Limit      int
}

// InvoiceRepository 账单仓储
type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	Update(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uint) (*Invoice, error)
	List(ctx context.Context, q Query) ([]Invoice, int64, error)
}
