package port

import (
	"context"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishCodeIssued(ctx context.Context, event domain.CodeIssuedEvent) error
	PublishCodeVerified(ctx context.Context, event domain.CodeVerifiedEvent) error
	PublishCaptchaVerified(ctx context.Context, event domain.CaptchaVerifiedEvent) error
	PublishPasswordReset(ctx context.Context, event domain.PasswordResetEvent) error
	PublishContactChanged(ctx context.Context, event domain.ContactChangedEvent) error
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
}
