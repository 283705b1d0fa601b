package sender

import (
	"context"

	"github.com/wyfcoding/evservicecenter/pkg/logger"
)

// MockSender 记录日志的空实现，用于开发环境和测试
type MockSender struct{}

// NewMockSender 创建 Mock 发送器
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send 仅记录日志
func (s *MockSender) Send(ctx context.Context, target, subject, content string) error {
	logger.Info(ctx, "Mock notification sent",
		"target", target,
		"subject", subject,
		"content_size", len(content))
	return nil
}
