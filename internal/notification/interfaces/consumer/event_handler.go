// Package consumer 通知服务的事件消费入口
package consumer

import (
	"context"
	"fmt"

	"github.com/wyfcoding/evservicecenter/internal/event"
	"github.com/wyfcoding/evservicecenter/internal/notification/application"
	"github.com/wyfcoding/evservicecenter/internal/notification/domain"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/metrics"
	"github.com/wyfcoding/evservicecenter/pkg/mq"
)

// EventHandler 将上游业务事件转换为用户/运营通知。
// 同一个处理器挂到全部业务主题上，按事件类型分派。
// 面向用户的通知走应用内收件箱（target 为 user:<id>），
// 面向运营的告警走邮件，收件地址来自配置。
type EventHandler struct {
	svc      *application.NotificationService
	opsEmail string
	metrics  *metrics.Metrics
}

// NewEventHandler 创建通知事件处理器。metrics 可为 nil。
func NewEventHandler(svc *application.NotificationService, opsEmail string, m *metrics.Metrics) *EventHandler {
	return &EventHandler{svc: svc, opsEmail: opsEmail, metrics: m}
}

// inboxTarget 应用内收件箱地址
func inboxTarget(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// Handle 处理单条业务事件。
// 无法解析的消息直接丢弃；通知写入按 NaturalKey 幂等，重复投递不会重复发送；
// 只有仓储等基础设施错误才返回给失败策略触发重投。
func (h *EventHandler) Handle(ctx context.Context, msg *mq.Message) error {
	env, err := event.Decode(msg.Value)
	if err != nil {
		logger.Error(ctx, "Dropping malformed envelope",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	n, err := h.buildNotification(env)
	if err != nil {
		logger.Error(ctx, "Dropping envelope with malformed payload",
			"topic", msg.Topic,
			"type", env.Type,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if n == nil {
		// 该事件类型无需通知
		return nil
	}

	if h.metrics != nil {
		h.metrics.EventsConsumedTotal.Inc()
	}

	if err := h.svc.Record(ctx, n); err != nil {
		if h.metrics != nil {
			h.metrics.EventFailuresTotal.Inc()
		}
		return err
	}
	return nil
}

func (h *EventHandler) buildNotification(env *event.Envelope) (*domain.Notification, error) {
	switch env.Type {
	case event.TypeWorkOrderCreated:
		p, err := env.WorkOrder()
		if err != nil {
			return nil, err
		}
		return &domain.Notification{
			NaturalKey: fmt.Sprintf("workorder:%d:created", p.ID),
			UserID:     p.CustomerID,
			Type:       domain.NotificationTypeInApp,
			Target:     inboxTarget(p.CustomerID),
			Subject:    "维修工单已创建",
			Content:    fmt.Sprintf("您的维修工单 #%d 已创建，当前状态：%s。", p.ID, p.Status),
		}, nil

	case event.TypeWorkOrderUpdated:
		p, err := env.WorkOrder()
		if err != nil {
			return nil, err
		}
		return &domain.Notification{
			NaturalKey: fmt.Sprintf("workorder:%d:%s", p.ID, p.Status),
			UserID:     p.CustomerID,
			Type:       domain.NotificationTypeInApp,
			Target:     inboxTarget(p.CustomerID),
			Subject:    "维修工单状态更新",
			Content:    fmt.Sprintf("您的维修工单 #%d 状态已变更为：%s。", p.ID, p.Status),
		}, nil

	case event.TypePartLowStock:
		p, err := env.LowStock()
		if err != nil {
			return nil, err
		}
		// 同一配件可能多次触发告警，键带上事件时间戳区分不同次告警
		return &domain.Notification{
			NaturalKey: fmt.Sprintf("lowstock:%d:%d", p.PartID, p.Timestamp.Unix()),
			UserID:     0,
			Type:       domain.NotificationTypeEmail,
			Target:     h.opsEmail,
			Subject:    fmt.Sprintf("配件低库存告警：%s", p.Name),
			Content: fmt.Sprintf("配件 %s（编号 %s）当前库存 %d，低于安全阈值 %d，请及时补货。",
				p.Name, p.PartNumber, p.Quantity, p.MinStock),
		}, nil

	case event.TypeAppointmentCreated:
		p, err := env.Appointment()
		if err != nil {
			return nil, err
		}
		return &domain.Notification{
			NaturalKey: fmt.Sprintf("appointment:%d:created", p.ID),
			UserID:     p.CustomerID,
			Type:       domain.NotificationTypeInApp,
			Target:     inboxTarget(p.CustomerID),
			Subject:    "预约已确认",
			Content: fmt.Sprintf("您的 %s 服务预约已确认，时间：%s 至 %s。",
				p.ServiceType,
				p.SlotStart.Format("2006-01-02 15:04"),
				p.SlotEnd.Format("15:04")),
		}, nil

	case event.TypePaymentSuccessful:
		p, err := env.Payment()
		if err != nil {
			return nil, err
		}
		return &domain.Notification{
			NaturalKey: fmt.Sprintf("payment:%d:paid", p.InvoiceID),
			UserID:     p.CustomerID,
			Type:       domain.NotificationTypeInApp,
			Target:     inboxTarget(p.CustomerID),
			Subject:    "支付成功",
			Content:    fmt.Sprintf("您的账单 #%d 已支付成功，金额 %s 元。", p.InvoiceID, p.Amount),
		}, nil

	default:
		return nil, nil
	}
}
