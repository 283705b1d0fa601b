package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/wyfcoding/evservicecenter/internal/event"
	"github.com/wyfcoding/evservicecenter/internal/notification/application"
	"github.com/wyfcoding/evservicecenter/internal/notification/domain"
	"github.com/wyfcoding/evservicecenter/pkg/cache"
	"github.com/wyfcoding/evservicecenter/pkg/metrics"
	"github.com/wyfcoding/evservicecenter/pkg/mq"
)

// fakeNotifRepo 按自然键去重的进程内仓储
type fakeNotifRepo struct {
	byKey     map[string]*domain.Notification
	upsertErr error
}

func newFakeNotifRepo() *fakeNotifRepo {
	return &fakeNotifRepo{byKey: make(map[string]*domain.Notification)}
}

func (r *fakeNotifRepo) Upsert(ctx context.Context, n *domain.Notification) (bool, error) {
	if r.upsertErr != nil {
		return false, r.upsertErr
	}
	if _, ok := r.byKey[n.NaturalKey]; ok {
		return false, nil
	}
	copied := *n
	r.byKey[n.NaturalKey] = &copied
	return true, nil
}

func (r *fakeNotifRepo) UpdateStatus(ctx context.Context, naturalKey string, status domain.NotificationStatus, errorMessage string, sentAt *time.Time) error {
	n, ok := r.byKey[naturalKey]
	if !ok {
		return domain.ErrNotificationNotFound
	}
	n.Status = status
	n.ErrorMessage = errorMessage
	n.SentAt = sentAt
	return nil
}

func (r *fakeNotifRepo) GetByID(ctx context.Context, id uint) (*domain.Notification, error) {
	return nil, domain.ErrNotificationNotFound
}

func (r *fakeNotifRepo) List(ctx context.Context, userID uint, page, limit int) ([]domain.Notification, int64, error) {
	var items []domain.Notification
	for _, n := range r.byKey {
		items = append(items, *n)
	}
	return items, int64(len(items)), nil
}

// recordingSender 记录发送请求，可注入失败
type recordingSender struct {
	sent    []string
	sendErr error
}

func (s *recordingSender) Send(ctx context.Context, target, subject, content string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, subject)
	return nil
}

const testOpsEmail = "ops@example.com"

func newEventHandler(repo domain.NotificationRepository, snd domain.Sender) *EventHandler {
	svc := application.NewNotificationService(repo, snd, cache.NewMemory(), time.Minute, metrics.New("test"))
	return NewEventHandler(svc, testOpsEmail, nil)
}

func message(t *testing.T, topic string, env *event.Envelope) *mq.Message {
	t.Helper()
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &mq.Message{Topic: topic, Value: data}
}

func TestHandleWorkOrderEventCreatesNotification(t *testing.T) {
	repo := newFakeNotifRepo()
	snd := &recordingSender{}
	h := newEventHandler(repo, snd)

	env, _ := event.NewWorkOrderUpdated(event.WorkOrderPayload{ID: 12, Status: "completed", CustomerID: 3})
	if err := h.Handle(context.Background(), message(t, event.TopicWorkOrder, env)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	n, ok := repo.byKey["workorder:12:completed"]
	if !ok {
		t.Fatalf("notification not recorded, keys: %v", keys(repo))
	}
	if n.UserID != 3 || n.Status != domain.NotificationStatusSent {
		t.Fatalf("notification mismatch: %+v", n)
	}
	if n.Target != "user:3" {
		t.Fatalf("target = %q, want user inbox address", n.Target)
	}
	if len(snd.sent) != 1 {
		t.Fatalf("sent %d times, want 1", len(snd.sent))
	}
}

func TestHandleDuplicateDeliverySendsOnce(t *testing.T) {
	repo := newFakeNotifRepo()
	snd := &recordingSender{}
	h := newEventHandler(repo, snd)

	env, _ := event.NewPaymentSuccessful(event.PaymentPayload{
		InvoiceID:  5,
		CustomerID: 2,
		Amount:     "149.90",
		PaidAt:     time.Now(),
	})
	msg := message(t, event.TopicPayment, env)

	for i := 0; i < 3; i++ {
		if err := h.Handle(context.Background(), msg); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	if len(repo.byKey) != 1 {
		t.Fatalf("recorded %d notifications, want 1", len(repo.byKey))
	}
	if len(snd.sent) != 1 {
		t.Fatalf("sent %d times, want 1 (redeliveries are no-ops)", len(snd.sent))
	}
}

func TestHandleDropsMalformedMessages(t *testing.T) {
	repo := newFakeNotifRepo()
	h := newEventHandler(repo, &recordingSender{})

	for _, raw := range [][]byte{
		[]byte("not-json"),
		[]byte(`{"payload":{}}`),
		[]byte(`{"type":"PAYMENT_SUCCESSFUL","payload":[1,2]}`),
	} {
		msg := &mq.Message{Topic: event.TopicPayment, Value: raw}
		if err := h.Handle(context.Background(), msg); err != nil {
			t.Fatalf("malformed message must be acked, got %v for %q", err, raw)
		}
	}
	if len(repo.byKey) != 0 {
		t.Fatalf("malformed messages must not record notifications")
	}
}

func TestHandleSenderFailureStillAcks(t *testing.T) {
	// 发送通道故障不应打回消息：通知落库为 FAILED 等待人工处理
	repo := newFakeNotifRepo()
	snd := &recordingSender{sendErr: errors.New("smtp unreachable")}
	h := newEventHandler(repo, snd)

	env, _ := event.NewAppointmentCreated(event.AppointmentPayload{
		ID:          4,
		CustomerID:  9,
		SlotStart:   time.Now(),
		SlotEnd:     time.Now().Add(time.Hour),
		ServiceType: "battery check",
	})
	if err := h.Handle(context.Background(), message(t, event.TopicBooking, env)); err != nil {
		t.Fatalf("sender failure must be acked, got %v", err)
	}

	n, ok := repo.byKey["appointment:4:created"]
	if !ok {
		t.Fatalf("notification not recorded")
	}
	if n.Status != domain.NotificationStatusFailed || n.ErrorMessage == "" {
		t.Fatalf("notification must be marked failed, got %+v", n)
	}
}

func TestHandleLowStockTargetsOpsEmail(t *testing.T) {
	repo := newFakeNotifRepo()
	snd := &recordingSender{}
	h := newEventHandler(repo, snd)

	at := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	env, _ := event.NewPartLowStock(event.LowStockPayload{
		PartID:     7,
		Name:       "coolant pump",
		PartNumber: "CP-7",
		Quantity:   2,
		MinStock:   5,
		Timestamp:  at,
	})
	if err := h.Handle(context.Background(), message(t, event.TopicInventory, env)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	n, ok := repo.byKey[fmt.Sprintf("lowstock:7:%d", at.Unix())]
	if !ok {
		t.Fatalf("notification not recorded, keys: %v", keys(repo))
	}
	if n.Type != domain.NotificationTypeEmail || n.Target != testOpsEmail {
		t.Fatalf("low stock alert must mail the ops address, got %+v", n)
	}
}

func TestHandleRepoFailurePropagates(t *testing.T) {
	repo := newFakeNotifRepo()
	repo.upsertErr = errors.New("deadlock")
	h := newEventHandler(repo, &recordingSender{})

	env, _ := event.NewPartLowStock(event.LowStockPayload{
		PartID:    2,
		Name:      "brake pad",
		Quantity:  1,
		MinStock:  5,
		Timestamp: time.Now(),
	})
	if err := h.Handle(context.Background(), message(t, event.TopicInventory, env)); err == nil {
		t.Fatalf("repository failure must propagate to failure policy")
	}
}

func keys(r *fakeNotifRepo) []string {
	out := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		out = append(out, k)
	}
	return out
}
