package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/wyfcoding/evservicecenter/internal/event"
	"github.com/wyfcoding/evservicecenter/internal/inventory/application"
	"github.com/wyfcoding/evservicecenter/internal/inventory/domain"
	"github.com/wyfcoding/evservicecenter/pkg/cache"
	"github.com/wyfcoding/evservicecenter/pkg/mq"
	"gorm.io/gorm"
)

var errInfra = errors.New("connection reset")

// scriptedRepo 极简仓储：单配件，可注入基础设施错误
type scriptedRepo struct {
	part    domain.Part
	usages  map[uint]bool
	txErr   error
	deducts int
}

func newScriptedRepo(quantity int64) *scriptedRepo {
	return &scriptedRepo{
		part: domain.Part{
			Model:      gorm.Model{ID: 1},
			Name:       "coolant pump",
			PartNumber: "PN-001",
			Quantity:   quantity,
			MinStock:   1,
		},
		usages: make(map[uint]bool),
	}
}

type scriptedTx struct{ r *scriptedRepo }

func (t *scriptedTx) GetPartForUpdate(ctx context.Context, partID uint) (*domain.Part, error) {
	if partID != t.r.part.ID {
		return nil, fmt.Errorf("part %d: %w", partID, domain.ErrPartNotFound)
	}
	copied := t.r.part
	return &copied, nil
}

func (t *scriptedTx) SavePart(ctx context.Context, part *domain.Part) error {
	t.r.part = *part
	t.r.deducts++
	return nil
}

func (t *scriptedTx) AppendStockLog(ctx context.Context, log *domain.StockLog) error { return nil }

func (t *scriptedTx) AppendPartsUsage(ctx context.Context, usage *domain.PartsUsage) error {
	t.r.usages[usage.WorkOrderID] = true
	return nil
}

func (t *scriptedTx) WorkOrderUsageExists(ctx context.Context, workOrderID uint) (bool, error) {
	return t.r.usages[workOrderID], nil
}

func (r *scriptedRepo) InTx(ctx context.Context, fn func(tx domain.StockTx) error) error {
	if r.txErr != nil {
		return r.txErr
	}
	return fn(&scriptedTx{r: r})
}

func (r *scriptedRepo) Create(ctx context.Context, part *domain.Part) error  { return nil }
func (r *scriptedRepo) Update(ctx context.Context, part *domain.Part) error  { return nil }
func (r *scriptedRepo) Delete(ctx context.Context, partID uint) error        { return nil }
func (r *scriptedRepo) GetByID(ctx context.Context, partID uint) (*domain.Part, error) {
	copied := r.part
	return &copied, nil
}
func (r *scriptedRepo) List(ctx context.Context, q domain.PartQuery) ([]domain.Part, int64, error) {
	return nil, 0, nil
}
func (r *scriptedRepo) History(ctx context.Context, partID uint, page, limit int) ([]domain.StockLog, int64, error) {
	return nil, 0, nil
}
func (r *scriptedRepo) UsageStats(ctx context.Context, year int) ([]domain.PartUsageStat, error) {
	return nil, nil
}
func (r *scriptedRepo) HasUsage(ctx context.Context, partID uint) (bool, error) { return false, nil }

func newHandler(repo domain.PartRepository) *WorkOrderHandler {
	cmd := application.NewStockCommandService(repo, event.NewInProcBus(), cache.NewMemory(), nil)
	return NewWorkOrderHandler(cmd, nil)
}

func message(t *testing.T, env *event.Envelope) *mq.Message {
	t.Helper()
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &mq.Message{Topic: event.TopicWorkOrder, Value: data}
}

func TestHandleDeductsOnCompletedEvent(t *testing.T) {
	repo := newScriptedRepo(10)
	h := newHandler(repo)

	env, _ := event.NewWorkOrderUpdated(event.WorkOrderPayload{
		ID:        7,
		Status:    "completed",
		PartsUsed: []event.PartUsage{{PartID: 1, QuantityUsed: 4}},
	})
	if err := h.Handle(context.Background(), message(t, env)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if repo.part.Quantity != 6 {
		t.Fatalf("quantity = %d, want 6", repo.part.Quantity)
	}
}

func TestHandleDropsMalformedMessages(t *testing.T) {
	repo := newScriptedRepo(10)
	h := newHandler(repo)

	for _, raw := range [][]byte{
		[]byte("not-json"),
		[]byte(`{"payload":{}}`),
		[]byte(`{"type":"WORKORDER_UPDATED","payload":"not-an-object"}`),
	} {
		msg := &mq.Message{Topic: event.TopicWorkOrder, Value: raw}
		if err := h.Handle(context.Background(), msg); err != nil {
			t.Fatalf("malformed message must be acked, got %v for %q", err, raw)
		}
	}
	if repo.deducts != 0 {
		t.Fatalf("malformed messages must not deduct")
	}
}

func TestHandleAcksBusinessFailures(t *testing.T) {
	// 库存不足重投只会再次失败，消息必须确认而不是打回
	repo := newScriptedRepo(1)
	h := newHandler(repo)

	env, _ := event.NewWorkOrderUpdated(event.WorkOrderPayload{
		ID:        8,
		Status:    "completed",
		PartsUsed: []event.PartUsage{{PartID: 1, QuantityUsed: 5}},
	})
	if err := h.Handle(context.Background(), message(t, env)); err != nil {
		t.Fatalf("business failure must be acked, got %v", err)
	}
	if repo.part.Quantity != 1 {
		t.Fatalf("quantity = %d, want 1", repo.part.Quantity)
	}
}

func TestHandleReturnsInfraErrors(t *testing.T) {
	repo := newScriptedRepo(10)
	repo.txErr = errInfra
	h := newHandler(repo)

	env, _ := event.NewWorkOrderUpdated(event.WorkOrderPayload{
		ID:        9,
		Status:    "completed",
		PartsUsed: []event.PartUsage{{PartID: 1, QuantityUsed: 1}},
	})
	if err := h.Handle(context.Background(), message(t, env)); !errors.Is(err, errInfra) {
		t.Fatalf("infra error must propagate to failure policy, got %v", err)
	}
}

func TestHandleIgnoresForeignEventTypes(t *testing.T) {
	repo := newScriptedRepo(10)
	h := newHandler(repo)

	env, _ := event.NewPartLowStock(event.LowStockPayload{PartID: 1})
	if err := h.Handle(context.Background(), message(t, env)); err != nil {
		t.Fatalf("foreign event type: %v", err)
	}
	if repo.deducts != 0 {
		t.Fatalf("foreign event must not deduct")
	}
}
