package port

import (
	"context"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

// VerificationSessionStore keeps multi-step verification progress.
type VerificationSessionStore interface {
	Save(ctx context.Context, session domain.VerificationSession) error
	Get(ctx context.Context, id string) (*domain.VerificationSession, error)
	Delete(ctx context.Context, id string) error
}
