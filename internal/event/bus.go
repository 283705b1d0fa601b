package event

import (
	"context"

	"github.com/wyfcoding/evservicecenter/pkg/mq"
)

// Bus 事件发布接口。生产者先提交本地事务，再发布信封；
// 发布与消费之间无同步耦合。
type Bus interface {
	Publish(ctx context.Context, topic string, key string, env *Envelope) error
}

// KafkaBus 基于 Kafka producer 的 Bus 实现
type KafkaBus struct {
	producer *mq.Producer
}

var _ Bus = (*KafkaBus)(nil)

// NewKafkaBus 创建 Kafka Bus
func NewKafkaBus(producer *mq.Producer) *KafkaBus {
	return &KafkaBus{producer: producer}
}

// Publish 发布信封。key 用于同一实体的分区内有序，跨主题无全局顺序保证。
func (b *KafkaBus) Publish(ctx context.Context, topic string, key string, env *Envelope) error {
	return b.producer.Publish(ctx, topic, key, env)
}
