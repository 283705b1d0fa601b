// Package consumer 库存服务的事件消费入口
package consumer

import (
	"context"

	"github.com/wyfcoding/evservicecenter/internal/event"
	"github.com/wyfcoding/evservicecenter/internal/inventory/application"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/metrics"
	"github.com/wyfcoding/evservicecenter/pkg/mq"
)

// WorkOrderHandler 消费工单生命周期事件并触发事务性扣减
type WorkOrderHandler struct {
	cmd     *application.StockCommandService
	metrics *metrics.Metrics
}

// NewWorkOrderHandler 创建工单事件处理器。metrics 可为 nil。
func NewWorkOrderHandler(cmd *application.StockCommandService, m *metrics.Metrics) *WorkOrderHandler {
	return &WorkOrderHandler{cmd: cmd, metrics: m}
}

// Handle 处理单条工单事件。
// 无法解析的消息直接丢弃（拒绝而不重投），不能让消费循环崩溃；
// 业务规则失败已整批回滚并记账日志，重投只会再次失败，同样确认掉；
// 只有基础设施错误才交给失败策略处置。
func (h *WorkOrderHandler) Handle(ctx context.Context, msg *mq.Message) error {
	env, err := event.Decode(msg.Value)
	if err != nil {
		logger.Error(ctx, "Dropping malformed envelope",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	if env.Type != event.TypeWorkOrderCreated && env.Type != event.TypeWorkOrderUpdated {
		return nil
	}

	payload, err := env.WorkOrder()
	if err != nil {
		logger.Error(ctx, "Dropping envelope with malformed payload",
			"topic", msg.Topic,
			"type", env.Type,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	if h.metrics != nil {
		h.metrics.EventsConsumedTotal.Inc()
	}

	if err := h.cmd.ApplyWorkOrderCompleted(ctx, payload); err != nil {
		if h.metrics != nil {
			h.metrics.EventFailuresTotal.Inc()
		}
		if application.IsBusinessError(err) {
			return nil
		}
		return err
	}
	return nil
}
