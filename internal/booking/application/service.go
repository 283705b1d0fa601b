// Package application 预约服务的应用层
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/evservicecenter/internal/booking/domain"
	"github.com/wyfcoding/evservicecenter/internal/event"
	"github.com/wyfcoding/evservicecenter/pkg/cache"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/metrics"
)

const (
	appointmentDetailKeyFmt = "appointment:detail:%d"
	appointmentListPrefix   = "appointments:list:"
	availabilityKeyFmt      = "booking:availability:tech:%d:date:%s"
	availabilityPrefix      = "booking:availability:"
	slotHoldKeyFmt          = "booking:hold:tech:%d:slot:%d"

	// 营业时段，按整点切分可预约时段
	openingHour = 9
	closingHour = 18

	maxPageLimit = 100
)

// Slot 可预约时段
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// AppointmentListResult 预约列表查询结果
type AppointmentListResult struct {
	Items []domain.Appointment `json:"items"`
	Total int64                `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// BookCommand 创建预约命令
type BookCommand struct {
	CustomerID   uint
	VehicleID    uint
	TechnicianID uint
	SlotStart    time.Time
	SlotEnd      time.Time
	ServiceType  string
	Notes        string
}

// TTLs 预约侧缓存生命周期
type TTLs struct {
	Detail       time.Duration
	List         time.Duration
	Availability time.Duration
	SlotHold     time.Duration
}

// DefaultTTLs 返回默认缓存生命周期。
// 可用性窗口刷新最快，时段占位略长于一次下单流程。
func DefaultTTLs() TTLs {
	return TTLs{
		Detail:       time.Hour,
		List:         5 * time.Minute,
		Availability: 3 * time.Minute,
		SlotHold:     5 * time.Minute,
	}
}

// BookingService 预约应用服务
type BookingService struct {
	repo    domain.AppointmentRepository
	bus     event.Bus
	cache   cache.Store
	ttls    TTLs
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewBookingService 创建预约应用服务
func NewBookingService(repo domain.AppointmentRepository, bus event.Bus, store cache.Store, ttls TTLs, m *metrics.Metrics) *BookingService {
	return &BookingService{
		repo:    repo,
		bus:     bus,
		cache:   store,
		ttls:    ttls,
		metrics: m,
		now:     time.Now,
	}
}

// Book 创建预约。
// 先用 Redis SetNX 对 (技师, 起始时段) 占位挡掉并发抢同一时段的大多数请求，
// 数据库唯一索引兜底。占位键不主动释放，靠 TTL 过期。
func (s *BookingService) Book(ctx context.Context, cmd BookCommand) (*domain.Appointment, error) {
	if !cmd.SlotStart.Before(cmd.SlotEnd) || cmd.SlotStart.Before(s.now()) {
		return nil, domain.ErrInvalidSlot
	}

	holdKey := fmt.Sprintf(slotHoldKeyFmt, cmd.TechnicianID, cmd.SlotStart.Unix())
	acquired, err := s.cache.SetNX(ctx, holdKey, cmd.CustomerID, s.ttls.SlotHold)
	if err != nil {
		// 占位失败降级为直接写库，由唯一索引裁决
		logger.Warn(ctx, "Slot hold failed, falling back to unique index", "key", holdKey, "error", err)
	} else if !acquired {
		return nil, domain.ErrSlotTaken
	}

	appointment := &domain.Appointment{
		CustomerID:   cmd.CustomerID,
		VehicleID:    cmd.VehicleID,
		TechnicianID: cmd.TechnicianID,
		SlotStart:    cmd.SlotStart,
		SlotEnd:      cmd.SlotEnd,
		ServiceType:  cmd.ServiceType,
		Status:       domain.AppointmentStatusScheduled,
		Notes:        cmd.Notes,
	}
	if err := s.repo.Create(ctx, appointment); err != nil {
		return nil, err
	}

	s.publishCreated(ctx, appointment)
	s.invalidate(ctx, appointment)
	return appointment, nil
}

// UpdateStatus 推进预约状态
func (s *BookingService) UpdateStatus(ctx context.Context, id uint, next domain.AppointmentStatus) (*domain.Appointment, error) {
	appointment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appointment.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, appointment.Status, next)
	}

	appointment.Status = next
	if err := s.repo.Update(ctx, appointment); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	if next == domain.AppointmentStatusCancelled {
		holdKey := fmt.Sprintf(slotHoldKeyFmt, appointment.TechnicianID, appointment.SlotStart.Unix())
		if err := s.cache.Delete(ctx, holdKey); err != nil {
			logger.Warn(ctx, "Failed to release slot hold", "key", holdKey, "error", err)
		}
	}

	s.invalidate(ctx, appointment)
	return appointment, nil
}

// Get 查询预约详情（cache-aside）
func (s *BookingService) Get(ctx context.Context, id uint) (*domain.Appointment, error) {
	key := fmt.Sprintf(appointmentDetailKeyFmt, id)
	var cached domain.Appointment
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		logger.Warn(ctx, "Appointment cache read failed", "key", key, "error", err)
	} else if hit {
		s.metrics.CacheHitsTotal.Inc()
		return &cached, nil
	}
	s.metrics.CacheMissesTotal.Inc()

	appointment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, key, appointment, s.ttls.Detail); err != nil {
		logger.Warn(ctx, "Appointment cache write failed", "key", key, "error", err)
	}
	return appointment, nil
}

// List 分页查询预约（cache-aside）
func (s *BookingService) List(ctx context.Context, q domain.Query) (*AppointmentListResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > maxPageLimit {
		q.Limit = 20
	}

	key := fmt.Sprintf("%scustomer:%d:tech:%d:status:%s:page:%d:limit:%d",
		appointmentListPrefix, q.CustomerID, q.TechnicianID, q.Status, q.Page, q.Limit)
	var cached AppointmentListResult
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		logger.Warn(ctx, "Appointment list cache read failed", "key", key, "error", err)
	} else if hit {
		s.metrics.CacheHitsTotal.Inc()
		return &cached, nil
	}
	s.metrics.CacheMissesTotal.Inc()

	items, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	result := &AppointmentListResult{Items: items, Total: total, Page: q.Page, Limit: q.Limit}

	if err := s.cache.SetJSON(ctx, key, result, s.ttls.List); err != nil {
		logger.Warn(ctx, "Appointment list cache write failed", "key", key, "error", err)
	}
	return result, nil
}

// Availability 查询技师某天的可预约时段（cache-aside，短 TTL）。
// 窗口按营业时段整点切分，已有有效预约的时段标记为不可用。
func (s *BookingService) Availability(ctx context.Context, technicianID uint, date time.Time) ([]Slot, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	key := fmt.Sprintf(availabilityKeyFmt, technicianID, day.Format("2006-01-02"))

	var cached []Slot
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		logger.Warn(ctx, "Availability cache read failed", "key", key, "error", err)
	} else if hit {
		s.metrics.CacheHitsTotal.Inc()
		return cached, nil
	}
	s.metrics.CacheMissesTotal.Inc()

	from := day.Add(openingHour * time.Hour)
	to := day.Add(closingHour * time.Hour)
	booked, err := s.repo.ListByTechnicianBetween(ctx, technicianID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list technician appointments: %w", err)
	}
	taken := make(map[int64]bool, len(booked))
	for _, a := range booked {
		taken[a.SlotStart.Unix()] = true
	}

	slots := make([]Slot, 0, closingHour-openingHour)
	for start := from; start.Before(to); start = start.Add(time.Hour) {
		slots = append(slots, Slot{
			Start:     start,
			End:       start.Add(time.Hour),
			Available: !taken[start.Unix()],
		})
	}

	if err := s.cache.SetJSON(ctx, key, slots, s.ttls.Availability); err != nil {
		logger.Warn(ctx, "Availability cache write failed", "key", key, "error", err)
	}
	return slots, nil
}

// publishCreated 提交后发布预约创建事件，发布失败只记日志
func (s *BookingService) publishCreated(ctx context.Context, a *domain.Appointment) {
	env, err := event.NewAppointmentCreated(event.AppointmentPayload{
		ID:           a.ID,
		CustomerID:   a.CustomerID,
		VehicleID:    a.VehicleID,
		TechnicianID: a.TechnicianID,
		SlotStart:    a.SlotStart,
		SlotEnd:      a.SlotEnd,
		ServiceType:  a.ServiceType,
	})
	if err != nil {
		logger.Error(ctx, "Failed to build appointment event", "appointment_id", a.ID, "error", err)
		return
	}
	key := fmt.Sprintf("appointment-%d", a.ID)
	if err := s.bus.Publish(ctx, event.TopicBooking, key, env); err != nil {
		logger.Error(ctx, "Failed to publish appointment event", "appointment_id", a.ID, "error", err)
		return
	}
	s.metrics.EventsPublishedTotal.Inc()
}

// invalidate 与写路径同步失效受影响的缓存键
func (s *BookingService) invalidate(ctx context.Context, a *domain.Appointment) {
	detailKey := fmt.Sprintf(appointmentDetailKeyFmt, a.ID)
	if err := s.cache.Delete(ctx, detailKey); err != nil {
		logger.Warn(ctx, "Appointment detail cache invalidation failed", "key", detailKey, "error", err)
	}
	for _, prefix := range []string{appointmentListPrefix, availabilityPrefix} {
		if _, err := s.cache.DeleteByPattern(ctx, prefix); err != nil {
			logger.Warn(ctx, "Appointment cache invalidation failed", "prefix", prefix, "error", err)
		}
	}
	s.metrics.CacheInvalidationsTotal.Inc()
}
