package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wyfcoding/evservicecenter/internal/event"
	"github.com/wyfcoding/evservicecenter/internal/workorder/domain"
	"github.com/wyfcoding/evservicecenter/pkg/cache"
)

type fakeOrderRepo struct {
	orders map[uint]domain.WorkOrder
	nextID uint
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uint]domain.WorkOrder), nextID: 1}
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *domain.WorkOrder) error {
	order.ID = r.nextID
	r.nextID++
	r.orders[order.ID] = *order
	return nil
}

func (r *fakeOrderRepo) Update(ctx context.Context, order *domain.WorkOrder) error {
	if _, ok := r.orders[order.ID]; !ok {
		return domain.ErrWorkOrderNotFound
	}
	r.orders[order.ID] = *order
	return nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, orderID uint) (*domain.WorkOrder, error) {
	if o, ok := r.orders[orderID]; ok {
		copied := o
		return &copied, nil
	}
	return nil, domain.ErrWorkOrderNotFound
}

func (r *fakeOrderRepo) List(ctx context.Context, q domain.Query) ([]domain.WorkOrder, int64, error) {
	var out []domain.WorkOrder
	for _, o := range r.orders {
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		out = append(out, o)
	}
	return out, int64(len(out)), nil
}

var _ domain.WorkOrderRepository = (*fakeOrderRepo)(nil)

func newService(repo domain.WorkOrderRepository) (*WorkOrderService, *event.InProcBus) {
	bus := event.NewInProcBus()
	return NewWorkOrderService(repo, bus, cache.NewMemory(), time.Hour, 5*time.Minute, nil), bus
}

func captureWorkOrderEvents(bus *event.InProcBus) *[]*event.Envelope {
	var got []*event.Envelope
	bus.Subscribe(event.TopicWorkOrder, func(ctx context.Context, env *event.Envelope) error {
		got = append(got, env)
		return nil
	})
	return &got
}

func TestCreatePublishesCreatedEvent(t *testing.T) {
	repo := newFakeOrderRepo()
	svc, bus := newService(repo)
	events := captureWorkOrderEvents(bus)

	order, err := svc.Create(context.Background(), CreateCommand{
		VehicleID:  1,
		CustomerID: 2,
		Items:      []ItemInput{{PartID: 3, QuantityUsed: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if order.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", order.Status)
	}

	if len(*events) != 1 {
		t.Fatalf("published %d events, want 1", len(*events))
	}
	payload, err := (*events)[0].WorkOrder()
	if err != nil {
		t.Fatalf("decode published event: %v", err)
	}
	if (*events)[0].Type != event.TypeWorkOrderCreated || payload.ID != order.ID {
		t.Fatalf("event mismatch: type=%s payload=%+v", (*events)[0].Type, payload)
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	repo := newFakeOrderRepo()
	svc, bus := newService(repo)
	events := captureWorkOrderEvents(bus)

	order, err := svc.Create(context.Background(), CreateCommand{
		VehicleID:  1,
		CustomerID: 2,
		Items:      []ItemInput{{PartID: 3, QuantityUsed: 2}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// pending 不能直接完成
	if _, err := svc.UpdateStatus(context.Background(), order.ID, domain.StatusCompleted); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("pending -> completed: got %v, want ErrInvalidTransition", err)
	}

	if _, err := svc.UpdateStatus(context.Background(), order.ID, domain.StatusInProgress); err != nil {
		t.Fatalf("pending -> in_progress: %v", err)
	}
	completed, err := svc.UpdateStatus(context.Background(), order.ID, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("in_progress -> completed: %v", err)
	}

	// 完成后不允许再流转
	if _, err := svc.UpdateStatus(context.Background(), order.ID, domain.StatusCancelled); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("completed -> cancelled: got %v, want ErrInvalidTransition", err)
	}

	// 创建 + 两次状态更新 = 三个事件，完成事件携带用料行
	if len(*events) != 3 {
		t.Fatalf("published %d events, want 3", len(*events))
	}
	last := (*events)[2]
	payload, err := last.WorkOrder()
	if err != nil {
		t.Fatalf("decode completed event: %v", err)
	}
	if last.Type != event.TypeWorkOrderUpdated || payload.Status != string(domain.StatusCompleted) {
		t.Fatalf("completed event mismatch: type=%s payload=%+v", last.Type, payload)
	}
	if len(payload.PartsUsed) != 1 || payload.PartsUsed[0].QuantityUsed != 2 {
		t.Fatalf("completed event must carry parts used, got %+v", payload.PartsUsed)
	}
	if completed.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}
}

func TestCompleteRequiresItems(t *testing.T) {
	repo := newFakeOrderRepo()
	svc, _ := newService(repo)

	order, err := svc.Create(context.Background(), CreateCommand{VehicleID: 1, CustomerID: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), order.ID, domain.StatusInProgress); err != nil {
		t.Fatalf("to in_progress: %v", err)
	}

	if _, err := svc.UpdateStatus(context.Background(), order.ID, domain.StatusCompleted); !errors.Is(err, domain.ErrNoItems) {
		t.Fatalf("got %v, want ErrNoItems", err)
	}
}

func TestUpdateItemsBlockedAfterCompletion(t *testing.T) {
	repo := newFakeOrderRepo()
	svc, _ := newService(repo)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateCommand{
		VehicleID:  1,
		CustomerID: 2,
		Items:      []ItemInput{{PartID: 3, QuantityUsed: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, order.ID, domain.StatusInProgress); err != nil {
		t.Fatalf("to in_progress: %v", err)
	}
	if _, err := svc.UpdateItems(ctx, order.ID, []ItemInput{{PartID: 4, QuantityUsed: 2}}); err != nil {
		t.Fatalf("UpdateItems while open: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, order.ID, domain.StatusCompleted); err != nil {
		t.Fatalf("to completed: %v", err)
	}

	if _, err := svc.UpdateItems(ctx, order.ID, []ItemInput{{PartID: 5, QuantityUsed: 1}}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
}

func TestGetServesFromCacheAfterFirstRead(t *testing.T) {
	repo := newFakeOrderRepo()
	svc, _ := newService(repo)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateCommand{VehicleID: 1, CustomerID: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Get(ctx, order.ID); err != nil {
		t.Fatalf("Get miss: %v", err)
	}

	// 绕过服务直接改库，缓存命中时仍返回旧值；状态更新后缓存同步失效
	raw := repo.orders[order.ID]
	raw.Description = "mutated behind cache"
	repo.orders[order.ID] = raw

	cached, err := svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("Get hit: %v", err)
	}
	if cached.Description == "mutated behind cache" {
		t.Fatalf("expected cached read, got store read")
	}

	if _, err := svc.UpdateStatus(ctx, order.ID, domain.StatusInProgress); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	fresh, err := svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("Get after invalidation: %v", err)
	}
	if fresh.Status != domain.StatusInProgress {
		t.Fatalf("status = %s, want in_progress (cache invalidated)", fresh.Status)
	}
}
