// Package mq 提供 Kafka producer/consumer 通用实现，投递语义为 at-least-once，
// 消费失败策略可配置（丢弃或死信队列）
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
)

// Config Kafka 配置
type Config struct {
	Brokers           []string
	GroupID           string
	SessionTimeout    int
	MaxRetries        int
	RetryBackoff      int
	ReconnectInterval int
	FailurePolicy     FailurePolicy
	HandlerRetries    int
}

// FailurePolicy 消息处理失败后的处置策略
type FailurePolicy string

const (
	// FailureDrop 记录日志后丢弃（原始行为）
	FailureDrop FailurePolicy = "drop"
	// FailureDLQ 转投 <topic>.dlq 死信主题后确认
	FailureDLQ FailurePolicy = "dlq"
)

// Message 消费到的消息
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
	Value     []byte
	Time      time.Time
}

// UnmarshalPayload 将消息值解析为 JSON
func (m *Message) UnmarshalPayload(dest interface{}) error {
	return json.Unmarshal(m.Value, dest)
}

// Handler 消息处理函数。返回 nil 表示处理成功并确认；
// 返回错误则按失败策略处置，bus 本身不做退避重投。
type Handler func(ctx context.Context, msg *Message) error

// Producer Kafka 生产者
type Producer struct {
	writer *kafka.Writer
	config Config
}

// NewProducer 创建 Kafka 生产者。
// 主题不存在时自动创建（对应持久化 fanout 语义），等待所有副本确认。
func NewProducer(cfg Config) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("mq: at least one broker is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxRetries,
		WriteBackoffMin:        time.Duration(cfg.RetryBackoff) * time.Millisecond,
		WriteBackoffMax:        time.Duration(cfg.RetryBackoff*10) * time.Millisecond,
	}

	logger.Info(context.Background(), "Kafka producer created successfully", "brokers", cfg.Brokers)
	return &Producer{
		writer: writer,
		config: cfg,
	}, nil
}

// Publish 发送单条消息。无订阅者时发布成功且无可见副作用。
// 连接不可用时立即返回错误，不做客户端排队。
func (p *Producer) Publish(ctx context.Context, topic string, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error(ctx, "Failed to publish message",
			"topic", topic,
			"key", key,
			"error", err,
		)
		return err
	}

	logger.Debug(ctx, "Message published",
		"topic", topic,
		"key", key,
	)
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Subscriber 管理一组主题订阅，每个订阅一个独立的消费循环
type Subscriber struct {
	config Config
	dlq    *Producer

	mu      sync.Mutex
	readers []*kafka.Reader
	wg      sync.WaitGroup
	closed  bool
}

// NewSubscriber 创建订阅管理器。
// policy 为 dlq 时需要传入用于转投死信主题的 producer，可与业务 producer 复用。
func NewSubscriber(cfg Config, dlqProducer *Producer) (*Subscriber, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("mq: at least one broker is required")
	}
	if cfg.FailurePolicy == FailureDLQ && dlqProducer == nil {
		return nil, fmt.Errorf("mq: dlq failure policy requires a producer")
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = FailureDrop
	}
	return &Subscriber{
		config: cfg,
		dlq:    dlqProducer,
	}, nil
}

// Subscribe 订阅主题并启动消费循环。
// 每次订阅生成独立的 consumer group（私有队列语义，广播 fanout），
// 单订阅内逐条处理，处理成功后才提交 offset（at-least-once）。
// 读取失败按固定间隔重连，处理失败按失败策略处置。
func (s *Subscriber) Subscribe(ctx context.Context, topic string, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mq: subscriber is closed")
	}

	groupID := fmt.Sprintf("%s-%s-%s", s.config.GroupID, topic, uuid.NewString())
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        s.config.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		SessionTimeout: time.Duration(s.config.SessionTimeout) * time.Second,
		StartOffset:    kafka.LastOffset,
		MaxBytes:       10e6, // 10MB
	})
	s.readers = append(s.readers, reader)

	logger.Info(ctx, "Subscribed to topic",
		"topic", topic,
		"group_id", groupID,
		"failure_policy", s.config.FailurePolicy,
	)

	s.wg.Add(1)
	go s.consumeLoop(ctx, reader, topic, handler)

	return nil
}

func (s *Subscriber) consumeLoop(ctx context.Context, reader *kafka.Reader, topic string, handler Handler) {
	defer s.wg.Done()

	reconnect := time.Duration(s.config.ReconnectInterval) * time.Second
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}

	for {
		raw, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			logger.Error(ctx, "Failed to fetch message, will retry",
				"topic", topic,
				"interval", reconnect,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnect):
			}
			continue
		}

		msg := &Message{
			Topic:     raw.Topic,
			Partition: raw.Partition,
			Offset:    raw.Offset,
			Key:       string(raw.Key),
			Value:     raw.Value,
			Time:      raw.Time,
		}

		if err := s.handleWithPolicy(ctx, msg, handler); err != nil {
			// 策略处置也失败（如 DLQ 不可达）：不提交 offset，走重连等待后重投
			logger.Error(ctx, "Failure policy disposition failed, message will be redelivered",
				"topic", topic,
				"offset", msg.Offset,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnect):
			}
			continue
		}

		if err := reader.CommitMessages(ctx, raw); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// 提交失败会导致重投，消费者必须幂等
			logger.Error(ctx, "Failed to commit offset",
				"topic", topic,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// handleWithPolicy 调用 handler，失败时先按配置重试，再按失败策略处置
func (s *Subscriber) handleWithPolicy(ctx context.Context, msg *Message, handler Handler) error {
	var err error
	attempts := s.config.HandlerRetries + 1
	for i := 0; i < attempts; i++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		logger.Warn(ctx, "Message handler failed",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"attempt", i+1,
			"error", err,
		)
	}

	switch s.config.FailurePolicy {
	case FailureDLQ:
		if dlqErr := s.sendToDLQ(ctx, msg, err); dlqErr != nil {
			return dlqErr
		}
	default:
		logger.Error(ctx, "Message dropped after handler failure",
			"topic", msg.Topic,
			"key", msg.Key,
			"offset", msg.Offset,
			"error", err,
		)
	}
	return nil
}

// sendToDLQ 将失败消息连同失败上下文转投 <topic>.dlq
func (s *Subscriber) sendToDLQ(ctx context.Context, msg *Message, cause error) error {
	deadLetter := map[string]interface{}{
		"original_topic":    msg.Topic,
		"original_key":      msg.Key,
		"original_value":    string(msg.Value),
		"original_offset":   msg.Offset,
		"original_time":     msg.Time,
		"failure_error":     cause.Error(),
		"failure_timestamp": time.Now(),
	}
	return s.dlq.Publish(ctx, msg.Topic+".dlq", msg.Key, deadLetter)
}

// Close 关闭所有订阅并等待消费循环退出
func (s *Subscriber) Close() error {
	s.mu.Lock()
	s.closed = true
	readers := s.readers
	s.readers = nil
	s.mu.Unlock()

	var firstErr error
	for _, reader := range readers {
		if err := reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.wg.Wait()
	return firstErr
}
