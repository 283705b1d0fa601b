// Package application 财务服务的应用层
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/evservicecenter/internal/event"
	"github.com/wyfcoding/evservicecenter/internal/finance/domain"
	"github.com/wyfcoding/evservicecenter/pkg/cache"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/metrics"
)

const (
	invoiceDetailKeyFmt = "invoice:detail:%d"
	invoiceListPrefix   = "invoices:list:"

	maxPageLimit = 100
)

// InvoiceListResult 账单列表查询结果
type InvoiceListResult struct {
	Items []domain.Invoice `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// LineItemInput 账单明细行输入
type LineItemInput struct {
	Description string `json:"description" binding:"required"`
	Quantity    int64  `json:"quantity" binding:"required"`
	UnitPrice   string `json:"unit_price" binding:"required"`
}

// CreateInvoiceCommand 创建账单命令
type CreateInvoiceCommand struct {
	CustomerID  uint
	WorkOrderID uint
	Items       []LineItemInput
}

// FinanceService 财务应用服务
type FinanceService struct {
	repo      domain.InvoiceRepository
	bus       event.Bus
	cache     cache.Store
	detailTTL time.Duration
	listTTL   time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewFinanceService 创建财务应用服务
func NewFinanceService(repo domain.InvoiceRepository, bus event.Bus, store cache.Store, detailTTL, listTTL time.Duration, m *metrics.Metrics) *FinanceService {
	return &FinanceService{
		repo:      repo,
		bus:       bus,
		cache:     store,
		detailTTL: detailTTL,
		listTTL:   listTTL,
		metrics:   m,
		now:       time.Now,
	}
}

// CreateInvoice 创建账单，总额由明细行累加得出
func (s *FinanceService) CreateInvoice(ctx context.Context, cmd CreateInvoiceCommand) (*domain.Invoice, error) {
	if len(cmd.Items) == 0 {
		return nil, domain.ErrNoLineItems
	}

	total := decimal.Zero
	items := make([]domain.InvoiceItem, 0, len(cmd.Items))
	for _, in := range cmd.Items {
		price, err := decimal.NewFromString(in.UnitPrice)
		if err != nil || price.IsNegative() || in.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %q x %d", domain.ErrInvalidAmount, in.UnitPrice, in.Quantity)
		}
		item := domain.InvoiceItem{
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   price,
		}
		total = total.Add(item.Subtotal())
		items = append(items, item)
	}

	invoice := &domain.Invoice{
		CustomerID:  cmd.CustomerID,
		WorkOrderID: cmd.WorkOrderID,
		Amount:      total,
		Status:      domain.InvoiceStatusUnpaid,
		Items:       items,
	}
	if err := s.repo.Create(ctx, invoice); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	s.invalidate(ctx, invoice.ID)
	return invoice, nil
}

// MarkPaid 将账单标记为已支付，提交后发布支付成功事件
func (s *FinanceService) MarkPaid(ctx context.Context, id uint) (*domain.Invoice, error) {
	invoice, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !invoice.Payable() {
		return nil, fmt.Errorf("%w: status %s", domain.ErrInvoiceNotPayable, invoice.Status)
	}

	paidAt := s.now()
	invoice.Status = domain.InvoiceStatusPaid
	invoice.PaidAt = &paidAt
	if err := s.repo.Update(ctx, invoice); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}

	s.publishPaid(ctx, invoice)
	s.invalidate(ctx, invoice.ID)
	return invoice, nil
}

// Void 作废未支付账单
func (s *FinanceService) Void(ctx context.Context, id uint) (*domain.Invoice, error) {
	invoice, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !invoice.Payable() {
		return nil, fmt.Errorf("%w: status %s", domain.ErrInvoiceNotPayable, invoice.Status)
	}

	invoice.Status = domain.InvoiceStatusVoid
	if err := s.repo.Update(ctx, invoice); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}

	s.invalidate(ctx, invoice.ID)
	return invoice, nil
}

// GetInvoice 查询账单详情（cache-aside）
func (s *FinanceService) GetInvoice(ctx context.Context, id uint) (*domain.Invoice, error) {
	key := fmt.Sprintf(invoiceDetailKeyFmt, id)
	var cached domain.Invoice
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		logger.Warn(ctx, "Invoice cache read failed", "key", key, "error", err)
	} else if hit {
		s.metrics.CacheHitsTotal.Inc()
		return &cached, nil
	}
	s.metrics.CacheMissesTotal.Inc()

	invoice, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, key, invoice, s.detailTTL); err != nil {
		logger.Warn(ctx, "Invoice cache write failed", "key", key, "error", err)
	}
	return invoice, nil
}

// ListInvoices 分页查询账单（cache-aside）
func (s *FinanceService) ListInvoices(ctx context.Context, q domain.Query) (*InvoiceListResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > maxPageLimit {
		q.Limit = 20
	}

	key := fmt.Sprintf("%scustomer:%d:status:%s:page:%d:limit:%d",
		invoiceListPrefix, q.CustomerID, q.Status, q.Page, q.Limit)
	var cached InvoiceListResult
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		logger.Warn(ctx, "Invoice list cache read failed", "key", key, "error", err)
	} else if hit {
		s.metrics.CacheHitsTotal.Inc()
		return &cached, nil
	}
	s.metrics.CacheMissesTotal.Inc()

	items, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	result := &InvoiceListResult{Items: items, Total: total, Page: q.Page, Limit: q.Limit}

	if err := s.cache.SetJSON(ctx, key, result, s.listTTL); err != nil {
		logger.Warn(ctx, "Invoice list cache write failed", "key", key, "error", err)
	}
	return result, nil
}

// publishPaid 提交后发布支付成功事件，发布失败只记日志
func (s *FinanceService) publishPaid(ctx context.Context, inv *domain.Invoice) {
	env, err := event.NewPaymentSuccessful(event.PaymentPayload{
		InvoiceID:  inv.ID,
		CustomerID: inv.CustomerID,
		Amount:     inv.Amount.StringFixed(2),
		PaidAt:     *inv.PaidAt,
	})
	if err != nil {
		logger.Error(ctx, "Failed to build payment event", "invoice_id", inv.ID, "error", err)
		return
	}
	key := fmt.Sprintf("invoice-%d", inv.ID)
	if err := s.bus.Publish(ctx, event.TopicPayment, key, env); err != nil {
		logger.Error(ctx, "Failed to publish payment event", "invoice_id", inv.ID, "error", err)
		return
	}
	s.metrics.EventsPublishedTotal.Inc()
}

// invalidate 与写路径同步失效受影响的缓存键
func (s *FinanceService) invalidate(ctx context.Context, invoiceID uint) {
	detailKey := fmt.Sprintf(invoiceDetailKeyFmt, invoiceID)
	if err := s.cache.Delete(ctx, detailKey); err != nil {
		logger.Warn(ctx, "Invoice detail cache invalidation failed", "key", detailKey, "error", err)
	}
	if _, err := s.cache.DeleteByPattern(ctx, invoiceListPrefix); err != nil {
		logger.Warn(ctx, "Invoice list cache invalidation failed", "prefix", invoiceListPrefix, "error", err)
	}
	s.metrics.CacheInvalidationsTotal.Inc()
}
