package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// publish wraps payload in the envelope and enqueues it. key selects the
// partition so events about one subject stay ordered.
func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, key string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := map[string]string{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	bytes, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if key != "" {
		message.Key = sarama.StringEncoder(key)
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *EventPublisher) PublishCodeIssued(ctx context.Context, event domain.CodeIssuedEvent) error {
	payload := struct {
		CodeID       string    `json:"code_id"`
		Channel      string    `json:"channel"`
		Purpose      string    `json:"purpose"`
		MaskedTarget string    `json:"masked_target"`
		ClientIP     string    `json:"client_ip,omitempty"`
		Delivered    bool      `json:"delivered"`
		IssuedAt     time.Time `json:"issued_at"`
		ExpiresAt    time.Time `json:"expires_at"`
	}{
		CodeID:       event.CodeID,
		Channel:      string(event.Channel),
		Purpose:      string(event.Purpose),
		MaskedTarget: event.MaskedTarget,
		ClientIP:     event.ClientIP,
		Delivered:    event.Delivered,
		IssuedAt:     event.IssuedAt.UTC(),
		ExpiresAt:    event.ExpiresAt.UTC(),
	}
	return p.publish(ctx, event.EventID, domain.EventCodeIssued, event.CodeID, event.IssuedAt, payload)
}

func (p *EventPublisher) PublishCodeVerified(ctx context.Context, event domain.CodeVerifiedEvent) error {
	payload := struct {
		CodeID       string    `json:"code_id"`
		Channel      string    `json:"channel"`
		Purpose      string    `json:"purpose"`
		MaskedTarget string    `json:"masked_target"`
		VerifiedAt   time.Time `json:"verified_at"`
	}{
		CodeID:       event.CodeID,
		Channel:      string(event.Channel),
		Purpose:      string(event.Purpose),
		MaskedTarget: event.MaskedTarget,
		VerifiedAt:   event.VerifiedAt.UTC(),
	}
	return p.publish(ctx, event.EventID, domain.EventCodeVerified, event.CodeID, event.VerifiedAt, payload)
}

func (p *EventPublisher) PublishCaptchaVerified(ctx context.Context, event domain.CaptchaVerifiedEvent) error {
	payload := struct {
		LogID      string    `json:"log_id"`
		Scene      string    `json:"scene"`
		Provider   string    `json:"provider"`
		Success    bool      `json:"success"`
		ClientIP   string    `json:"client_ip,omitempty"`
		VerifiedAt time.Time `json:"verified_at"`
	}{
		LogID:      event.LogID,
		Scene:      event.Scene,
		Provider:   string(event.Provider),
		Success:    event.Success,
		ClientIP:   event.ClientIP,
		VerifiedAt: event.VerifiedAt.UTC(),
	}
	return p.publish(ctx, event.EventID, domain.EventCaptchaVerified, event.LogID, event.VerifiedAt, payload)
}

func (p *EventPublisher) PublishPasswordReset(ctx context.Context, event domain.PasswordResetEvent) error {
	payload := struct {
		UserID        string    `json:"user_id"`
		Method        string    `json:"method"`
		TokensRevoked int64     `json:"tokens_revoked"`
		ResetAt       time.Time `json:"reset_at"`
		ClientIP      string    `json:"client_ip,omitempty"`
	}{
		UserID:        event.UserID,
		Method:        string(event.Method),
		TokensRevoked: event.TokensRevoked,
		ResetAt:       event.ResetAt.UTC(),
		ClientIP:      event.ClientIP,
	}
	return p.publish(ctx, event.EventID, domain.EventPasswordReset, event.UserID, event.ResetAt, payload)
}

func (p *EventPublisher) PublishContactChanged(ctx context.Context, event domain.ContactChangedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		Channel   string    `json:"channel"`
		OldMasked string    `json:"old_masked,omitempty"`
		NewMasked string    `json:"new_masked"`
		ChangedAt time.Time `json:"changed_at"`
	}{
		UserID:    event.UserID,
		Channel:   string(event.Channel),
		OldMasked: event.OldMasked,
		NewMasked: event.NewMasked,
		ChangedAt: event.ChangedAt.UTC(),
	}
	return p.publish(ctx, event.EventID, domain.EventContactChanged, event.UserID, event.ChangedAt, payload)
}

func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string    `json:"user_id"`
		Username     string    `json:"username"`
		Channel      string    `json:"channel"`
		MaskedTarget string    `json:"masked_target"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		UserID:       event.UserID,
		Username:     event.Username,
		Channel:      string(event.Channel),
		MaskedTarget: event.MaskedTarget,
		RegisteredAt: event.RegisteredAt.UTC(),
	}
	return p.publish(ctx, event.EventID, domain.EventUserRegistered, event.UserID, event.RegisteredAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
