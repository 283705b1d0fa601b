package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wyfcoding/evservicecenter/pkg/logger"
)

// WebhookSender 基于 HTTP 回调的通知发送器
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender 创建 Webhook 发送器
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	Subject   string `json:"subject"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Send 将通知以 JSON 形式 POST 到目标地址
func (s *WebhookSender) Send(ctx context.Context, target, subject, content string) error {
	body, err := json.Marshal(webhookPayload{
		Subject:   subject,
		Content:   content,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	logger.Info(ctx, "Webhook delivered", "target", target, "status", resp.StatusCode)
	return nil
}
