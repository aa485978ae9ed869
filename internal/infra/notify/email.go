package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/config"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/logger"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/telemetry"
)

var purposeSubjects = map[domain.Purpose]string{
	domain.PurposeRegister:      "注册验证码",
	domain.PurposeLogin:         "登录验证码",
	domain.PurposePasswordReset: "重置密码验证码",
	domain.PurposeChangePhone:   "更换手机号验证码",
	domain.PurposeChangeEmail:   "更换邮箱验证码",
	domain.PurposeBind:          "绑定验证码",
}

// SMTPEmailSender delivers codes over SMTP.
type SMTPEmailSender struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

// NewSMTPEmailSender builds a sender for the configured SMTP server.
func NewSMTPEmailSender(cfg config.SMTPSettings, log *zap.Logger) *SMTPEmailSender {
	if log == nil {
		log = zap.NewNop()
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	dialer.SSL = cfg.Port == 465
	return &SMTPEmailSender{
		dialer: dialer,
		from:   cfg.From,
		logger: log,
	}
}

func subjectFor(p domain.Purpose) string {
	if s, ok := purposeSubjects[p]; ok {
		return s
	}
	return "验证码"
}

func (s *SMTPEmailSender) buildMessage(msg domain.CodeMessage) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.Target)
	m.SetHeader("Subject", subjectFor(msg.Purpose))

	minutes := int(msg.ExpiresIn / time.Minute)
	body := fmt.Sprintf(`
		<p>您的验证码是：<strong>%s</strong></p>
		<p>验证码%d分钟内有效，请勿泄露给他人。</p>
		<p>如果这不是您本人的操作，请忽略此邮件。</p>
	`, msg.Code, minutes)
	m.SetBody("text/html", body)
	return m
}

// Send dials the SMTP server and delivers the message. gomail does not take
// a context, so cancellation only abandons the wait.
func (s *SMTPEmailSender) Send(ctx context.Context, msg domain.CodeMessage) error {
	ctx, span := telemetry.Tracer().Start(ctx, "notify.email.send")
	defer span.End()

	m := s.buildMessage(msg)
	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("send email: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	logger.WithContext(ctx).Info("email dispatched",
		zap.String("email", logger.MaskEmail(msg.Target)),
		zap.String("purpose", string(msg.Purpose)),
	)
	return nil
}
