package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/wyfcoding/evservicecenter/internal/event"
	"github.com/wyfcoding/evservicecenter/internal/inventory/domain"
	"github.com/wyfcoding/evservicecenter/pkg/cache"
	"gorm.io/gorm"
)

// fakeStockRepo 进程内配件仓储，事务语义通过暂存区模拟：
// fn 返回错误时丢弃暂存区，等价于数据库整体回滚。
type fakeStockRepo struct {
	mu     sync.Mutex
	parts  map[uint]domain.Part
	logs   []domain.StockLog
	usages []domain.PartsUsage
}

func newFakeStockRepo(parts ...domain.Part) *fakeStockRepo {
	r := &fakeStockRepo{parts: make(map[uint]domain.Part)}
	for _, p := range parts {
		r.parts[p.ID] = p
	}
	return r
}

type fakeStockTx struct {
	repo   *fakeStockRepo
	parts  map[uint]domain.Part
	logs   []domain.StockLog
	usages []domain.PartsUsage
}

func (t *fakeStockTx) GetPartForUpdate(ctx context.Context, partID uint) (*domain.Part, error) {
	if p, ok := t.parts[partID]; ok {
		copied := p
		return &copied, nil
	}
	if p, ok := t.repo.parts[partID]; ok {
		copied := p
		return &copied, nil
	}
	return nil, fmt.Errorf("part %d: %w", partID, domain.ErrPartNotFound)
}

func (t *fakeStockTx) SavePart(ctx context.Context, part *domain.Part) error {
	t.parts[part.ID] = *part
	return nil
}

func (t *fakeStockTx) AppendStockLog(ctx context.Context, log *domain.StockLog) error {
	t.logs = append(t.logs, *log)
	return nil
}

func (t *fakeStockTx) AppendPartsUsage(ctx context.Context, usage *domain.PartsUsage) error {
	t.usages = append(t.usages, *usage)
	return nil
}

func (t *fakeStockTx) WorkOrderUsageExists(ctx context.Context, workOrderID uint) (bool, error) {
	for _, u := range t.repo.usages {
		if u.WorkOrderID == workOrderID {
			return true, nil
		}
	}
	for _, u := range t.usages {
		if u.WorkOrderID == workOrderID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeStockRepo) InTx(ctx context.Context, fn func(tx domain.StockTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &fakeStockTx{repo: r, parts: make(map[uint]domain.Part)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, p := range tx.parts {
		r.parts[id] = p
	}
	r.logs = append(r.logs, tx.logs...)
	r.usages = append(r.usages, tx.usages...)
	return nil
}

func (r *fakeStockRepo) Create(ctx context.Context, part *domain.Part) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.parts {
		if p.PartNumber == part.PartNumber {
			return domain.ErrDuplicatePartNumber
		}
	}
	if part.ID == 0 {
		part.ID = uint(len(r.parts) + 1)
	}
	r.parts[part.ID] = *part
	return nil
}

func (r *fakeStockRepo) Update(ctx context.Context, part *domain.Part) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.parts[part.ID]; !ok {
		return domain.ErrPartNotFound
	}
	r.parts[part.ID] = *part
	return nil
}

func (r *fakeStockRepo) Delete(ctx context.Context, partID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.parts, partID)
	return nil
}

func (r *fakeStockRepo) GetByID(ctx context.Context, partID uint) (*domain.Part, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.parts[partID]; ok {
		copied := p
		return &copied, nil
	}
	return nil, fmt.Errorf("part %d: %w", partID, domain.ErrPartNotFound)
}

func (r *fakeStockRepo) List(ctx context.Context, q domain.PartQuery) ([]domain.Part, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var parts []domain.Part
	for _, p := range r.parts {
		if q.LowStockOnly && !p.BelowMinStock() {
			continue
		}
		parts = append(parts, p)
	}
	return parts, int64(len(parts)), nil
}

func (r *fakeStockRepo) History(ctx context.Context, partID uint, page, limit int) ([]domain.StockLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var logs []domain.StockLog
	for _, l := range r.logs {
		if l.PartID == partID {
			logs = append(logs, l)
		}
	}
	return logs, int64(len(logs)), nil
}

func (r *fakeStockRepo) UsageStats(ctx context.Context, year int) ([]domain.PartUsageStat, error) {
	return nil, nil
}

func (r *fakeStockRepo) HasUsage(ctx context.Context, partID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.usages {
		if u.PartID == partID {
			return true, nil
		}
	}
	return false, nil
}

var _ domain.PartRepository = (*fakeStockRepo)(nil)

func part(id uint, quantity, minStock int64) domain.Part {
	return domain.Part{
		Model:      gorm.Model{ID: id},
		Name:       fmt.Sprintf("part-%d", id),
		PartNumber: fmt.Sprintf("PN-%03d", id),
		Quantity:   quantity,
		MinStock:   minStock,
	}
}

func newStockService(repo *fakeStockRepo) (*StockCommandService, *event.InProcBus, *cache.Memory) {
	bus := event.NewInProcBus()
	store := cache.NewMemory()
	return NewStockCommandService(repo, bus, store, nil), bus, store
}

func completedOrder(id uint, items ...event.PartUsage) *event.WorkOrderPayload {
	return &event.WorkOrderPayload{ID: id, Status: "completed", PartsUsed: items}
}

func TestApplyWorkOrderCompletedDeductsAllItems(t *testing.T) {
	repo := newFakeStockRepo(part(1, 10, 2), part(2, 5, 1))
	svc, _, _ := newStockService(repo)

	payload := completedOrder(100,
		event.PartUsage{PartID: 1, QuantityUsed: 3},
		event.PartUsage{PartID: 2, QuantityUsed: 2},
	)
	if err := svc.ApplyWorkOrderCompleted(context.Background(), payload); err != nil {
		t.Fatalf("ApplyWorkOrderCompleted: %v", err)
	}

	if got := repo.parts[1].Quantity; got != 7 {
		t.Fatalf("part 1 quantity = %d, want 7", got)
	}
	if got := repo.parts[2].Quantity; got != 3 {
		t.Fatalf("part 2 quantity = %d, want 3", got)
	}
	if len(repo.logs) != 2 {
		t.Fatalf("stock logs = %d, want 2", len(repo.logs))
	}
	for _, l := range repo.logs {
		if l.ChangeType != domain.ChangeTypeOut {
			t.Fatalf("log change type = %s, want OUT", l.ChangeType)
		}
	}
	if len(repo.usages) != 2 {
		t.Fatalf("usages = %d, want 2", len(repo.usages))
	}
}

func TestApplyWorkOrderCompletedRollsBackWholeBatch(t *testing.T) {
	// 第二行库存不足，第一行已执行的扣减也必须回滚
	repo := newFakeStockRepo(part(1, 10, 2), part(2, 1, 0))
	svc, _, _ := newStockService(repo)

	payload := completedOrder(101,
		event.PartUsage{PartID: 1, QuantityUsed: 3},
		event.PartUsage{PartID: 2, QuantityUsed: 5},
	)
	err := svc.ApplyWorkOrderCompleted(context.Background(), payload)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("got %v, want ErrInsufficientStock", err)
	}
	if !IsBusinessError(err) {
		t.Fatalf("insufficient stock must classify as business error")
	}

	if got := repo.parts[1].Quantity; got != 10 {
		t.Fatalf("part 1 quantity = %d, want 10 (rolled back)", got)
	}
	if got := repo.parts[2].Quantity; got != 1 {
		t.Fatalf("part 2 quantity = %d, want 1", got)
	}
	if len(repo.logs) != 0 || len(repo.usages) != 0 {
		t.Fatalf("rollback must leave no logs/usages, got %d/%d", len(repo.logs), len(repo.usages))
	}
}

func TestApplyWorkOrderCompletedNeverGoesNegative(t *testing.T) {
	repo := newFakeStockRepo(part(1, 2, 0))
	svc, _, _ := newStockService(repo)

	err := svc.ApplyWorkOrderCompleted(context.Background(),
		completedOrder(102, event.PartUsage{PartID: 1, QuantityUsed: 3}))
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("got %v, want ErrInsufficientStock", err)
	}
	if got := repo.parts[1].Quantity; got != 2 {
		t.Fatalf("part 1 quantity = %d, want 2", got)
	}

	// 余量正好够用时允许扣到零
	if err := svc.ApplyWorkOrderCompleted(context.Background(),
		completedOrder(103, event.PartUsage{PartID: 1, QuantityUsed: 2})); err != nil {
		t.Fatalf("exact deduction: %v", err)
	}
	if got := repo.parts[1].Quantity; got != 0 {
		t.Fatalf("part 1 quantity = %d, want 0", got)
	}
}

func TestApplyWorkOrderCompletedDuplicateDeliverySkipped(t *testing.T) {
	repo := newFakeStockRepo(part(1, 10, 2))
	svc, _, _ := newStockService(repo)

	payload := completedOrder(104, event.PartUsage{PartID: 1, QuantityUsed: 3})
	if err := svc.ApplyWorkOrderCompleted(context.Background(), payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.ApplyWorkOrderCompleted(context.Background(), payload); err != nil {
		t.Fatalf("redelivery must succeed without effect: %v", err)
	}

	if got := repo.parts[1].Quantity; got != 7 {
		t.Fatalf("part 1 quantity = %d, want 7 (deducted once)", got)
	}
	if len(repo.logs) != 1 || len(repo.usages) != 1 {
		t.Fatalf("redelivery must not append, got %d logs %d usages", len(repo.logs), len(repo.usages))
	}
}

func TestApplyWorkOrderCompletedIgnoresOtherStatuses(t *testing.T) {
	repo := newFakeStockRepo(part(1, 10, 2))
	svc, _, _ := newStockService(repo)

	payload := &event.WorkOrderPayload{
		ID:        105,
		Status:    "in_progress",
		PartsUsed: []event.PartUsage{{PartID: 1, QuantityUsed: 3}},
	}
	if err := svc.ApplyWorkOrderCompleted(context.Background(), payload); err != nil {
		t.Fatalf("non-completed status: %v", err)
	}
	if got := repo.parts[1].Quantity; got != 10 {
		t.Fatalf("part 1 quantity = %d, want 10", got)
	}
}

func TestApplyWorkOrderCompletedRejectsNonPositiveQuantity(t *testing.T) {
	repo := newFakeStockRepo(part(1, 10, 2))
	svc, _, _ := newStockService(repo)

	for _, qty := range []int64{0, -1} {
		err := svc.ApplyWorkOrderCompleted(context.Background(),
			completedOrder(106, event.PartUsage{PartID: 1, QuantityUsed: qty}))
		if !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Fatalf("quantity %d: got %v, want ErrInvalidQuantity", qty, err)
		}
	}
	if got := repo.parts[1].Quantity; got != 10 {
		t.Fatalf("part 1 quantity = %d, want 10", got)
	}
}

func TestApplyWorkOrderCompletedUnknownPart(t *testing.T) {
	repo := newFakeStockRepo(part(1, 10, 2))
	svc, _, _ := newStockService(repo)

	err := svc.ApplyWorkOrderCompleted(context.Background(),
		completedOrder(107, event.PartUsage{PartID: 99, QuantityUsed: 1}))
	if !errors.Is(err, domain.ErrPartNotFound) {
		t.Fatalf("got %v, want ErrPartNotFound", err)
	}
}

func TestLowStockAlertOnlyOnCrossing(t *testing.T) {
	repo := newFakeStockRepo(part(1, 6, 5))
	svc, bus, _ := newStockService(repo)

	var alerts []*event.LowStockPayload
	bus.Subscribe(event.TopicInventory, func(ctx context.Context, env *event.Envelope) error {
		p, err := env.LowStock()
		if err != nil {
			return err
		}
		alerts = append(alerts, p)
		return nil
	})

	// 6 -> 4：从水位之上跌到水位以下，触发一次告警
	if err := svc.ApplyWorkOrderCompleted(context.Background(),
		completedOrder(108, event.PartUsage{PartID: 1, QuantityUsed: 2})); err != nil {
		t.Fatalf("first deduction: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].PartID != 1 || alerts[0].Quantity != 4 || alerts[0].MinStock != 5 {
		t.Fatalf("alert payload mismatch: %+v", alerts[0])
	}

	// 4 -> 3：已在水位以下，不重复告警
	if err := svc.ApplyWorkOrderCompleted(context.Background(),
		completedOrder(109, event.PartUsage{PartID: 1, QuantityUsed: 1})); err != nil {
		t.Fatalf("second deduction: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1 (no duplicate below watermark)", len(alerts))
	}
}

func TestApplyWorkOrderCompletedInvalidatesCaches(t *testing.T) {
	repo := newFakeStockRepo(part(1, 10, 2))
	svc, _, store := newStockService(repo)
	ctx := context.Background()

	stale := map[string]string{
		partDetailKey(1):               "stale-detail",
		partsListKey(1, 10, "", false): "stale-list",
		partsStatsKey(2026):            "stale-stats",
		partHistoryKey(1, 1, 10):       "stale-history",
	}
	for k, v := range stale {
		if err := store.Set(ctx, k, v, 0); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}

	if err := svc.ApplyWorkOrderCompleted(ctx,
		completedOrder(110, event.PartUsage{PartID: 1, QuantityUsed: 1})); err != nil {
		t.Fatalf("ApplyWorkOrderCompleted: %v", err)
	}

	for k := range stale {
		if v, _ := store.Get(ctx, k); v != "" {
			t.Fatalf("key %q still cached after mutation", k)
		}
	}
}

func TestAdjustStock(t *testing.T) {
	repo := newFakeStockRepo(part(1, 10, 2))
	svc, _, _ := newStockService(repo)
	ctx := context.Background()

	updated, err := svc.AdjustStock(ctx, 1, domain.ChangeTypeIn, 5, "restock")
	if err != nil {
		t.Fatalf("AdjustStock IN: %v", err)
	}
	if updated.Quantity != 15 {
		t.Fatalf("quantity = %d, want 15", updated.Quantity)
	}

	updated, err = svc.AdjustStock(ctx, 1, domain.ChangeTypeOut, 4, "damage write-off")
	if err != nil {
		t.Fatalf("AdjustStock OUT: %v", err)
	}
	if updated.Quantity != 11 {
		t.Fatalf("quantity = %d, want 11", updated.Quantity)
	}

	if _, err := svc.AdjustStock(ctx, 1, domain.ChangeTypeOut, 100, "oversized"); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("got %v, want ErrInsufficientStock", err)
	}
	if _, err := svc.AdjustStock(ctx, 1, domain.ChangeTypeIn, 0, "noop"); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("got %v, want ErrInvalidQuantity", err)
	}

	// 流水恒等：IN 合计 - OUT 合计 == 当前数量 - 初始数量
	var signed int64
	for _, l := range repo.logs {
		if l.ChangeType == domain.ChangeTypeIn {
			signed += l.Quantity
		} else {
			signed -= l.Quantity
		}
	}
	if signed != repo.parts[1].Quantity-10 {
		t.Fatalf("ledger sum %d does not match quantity delta %d", signed, repo.parts[1].Quantity-10)
	}
}

func TestDeletePartRefusedWhenUsed(t *testing.T) {
	repo := newFakeStockRepo(part(1, 10, 2))
	svc, _, _ := newStockService(repo)
	ctx := context.Background()

	if err := svc.ApplyWorkOrderCompleted(ctx,
		completedOrder(111, event.PartUsage{PartID: 1, QuantityUsed: 1})); err != nil {
		t.Fatalf("deduction: %v", err)
	}

	if err := svc.DeletePart(ctx, 1); !errors.Is(err, domain.ErrPartInUse) {
		t.Fatalf("got %v, want ErrPartInUse", err)
	}
}
