// Package sender 通知通道发送器实现
package sender

import (
	"context"
	"fmt"

	"github.com/wyfcoding/evservicecenter/pkg/logger"
)

// SMTPSender 基于 SMTP 的邮件发送器
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPSender 创建 SMTP 发送器
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Send 发送邮件通知。当前为模拟实现：构造报文后记录日志即返回。
func (s *SMTPSender) Send(ctx context.Context, target, subject, content string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", s.from, target, subject, content)

	// addr := fmt.Sprintf("%s:%d", s.host, s.port)
	// auth := smtp.PlainAuth("", s.username, s.password, s.host)
	// return smtp.SendMail(addr, auth, s.from, []string{target}, []byte(msg))

	logger.Info(ctx, "Email sent (simulated)",
		"to", target,
		"subject", subject,
		"size", len(msg))
	return nil
}
