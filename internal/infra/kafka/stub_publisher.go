package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. It is used
// when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now()
	}
	base := []zap.Field{
		zap.String("event_type", eventType),
		zap.Time("timestamp", at.UTC()),
	}
	p.logger.Info("Stub event published", append(base, fields...)...)
}

func (p *StubPublisher) PublishCodeIssued(_ context.Context, event domain.CodeIssuedEvent) error {
	p.logEvent(domain.EventCodeIssued, event.IssuedAt,
		zap.String("code_id", event.CodeID),
		zap.String("channel", string(event.Channel)),
		zap.String("purpose", string(event.Purpose)),
		zap.String("target", event.MaskedTarget),
		zap.Bool("delivered", event.Delivered),
	)
	return nil
}

func (p *StubPublisher) PublishCodeVerified(_ context.Context, event domain.CodeVerifiedEvent) error {
	p.logEvent(domain.EventCodeVerified, event.VerifiedAt,
		zap.String("code_id", event.CodeID),
		zap.String("purpose", string(event.Purpose)),
		zap.String("target", event.MaskedTarget),
	)
	return nil
}

func (p *StubPublisher) PublishCaptchaVerified(_ context.Context, event domain.CaptchaVerifiedEvent) error {
	p.logEvent(domain.EventCaptchaVerified, event.VerifiedAt,
		zap.String("log_id", event.LogID),
		zap.String("scene", event.Scene),
		zap.String("provider", string(event.Provider)),
		zap.Bool("success", event.Success),
	)
	return nil
}

func (p *StubPublisher) PublishPasswordReset(_ context.Context, event domain.PasswordResetEvent) error {
	p.logEvent(domain.EventPasswordReset, event.ResetAt,
		zap.String("user_id", event.UserID),
		zap.String("method", string(event.Method)),
		zap.Int64("tokens_revoked", event.TokensRevoked),
	)
	return nil
}

func (p *StubPublisher) PublishContactChanged(_ context.Context, event domain.ContactChangedEvent) error {
	p.logEvent(domain.EventContactChanged, event.ChangedAt,
		zap.String("user_id", event.UserID),
		zap.String("channel", string(event.Channel)),
		zap.String("new", event.NewMasked),
	)
	return nil
}

func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent(domain.EventUserRegistered, event.RegisteredAt,
		zap.String("user_id", event.UserID),
		zap.String("channel", string(event.Channel)),
		zap.String("target", event.MaskedTarget),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
