package event

import (
	"context"
	"sync"

	"github.com/wyfcoding/evservicecenter/pkg/logger"
)

// InProcHandler 进程内订阅处理函数
type InProcHandler func(ctx context.Context, env *Envelope) error

// InProcBus 进程内 Bus 实现，供单测与单机本地运行使用。
// 语义对齐 Kafka 实现：无订阅者时发布成功且无副作用，
// 同一主题内按发布顺序投递，处理失败记录日志后丢弃（不阻塞发布方）。
type InProcBus struct {
	mu   sync.RWMutex
	subs map[string][]InProcHandler
}

var _ Bus = (*InProcBus)(nil)

// NewInProcBus 创建进程内 Bus
func NewInProcBus() *InProcBus {
	return &InProcBus{subs: make(map[string][]InProcHandler)}
}

// Subscribe 订阅主题
func (b *InProcBus) Subscribe(topic string, handler InProcHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], handler)
}

// Publish 将信封投递给当前绑定的全部订阅者
func (b *InProcBus) Publish(ctx context.Context, topic string, key string, env *Envelope) error {
	b.mu.RLock()
	handlers := append([]InProcHandler(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, env); err != nil {
			logger.Error(ctx, "In-process handler failed",
				"topic", topic,
				"type", env.Type,
				"error", err,
			)
		}
	}
	return nil
}
