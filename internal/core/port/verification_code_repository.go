package port

import (
	"context"
	"time"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

// VerificationCodeRepository persists SMS and email codes. Every lookup is
// scoped by channel and purpose.
type VerificationCodeRepository interface {
	Create(ctx context.Context, code domain.VerificationCode) error
	GetByID(ctx context.Context, channel domain.Channel, id string) (*domain.VerificationCode, error)
	// Latest returns the most recently issued row for target and purpose in the given status.
	Latest(ctx context.Context, channel domain.Channel, target string, purpose domain.Purpose, status domain.CodeStatus) (*domain.VerificationCode, error)
	// RecordAttempt increments verify_count and returns the new count.
	RecordAttempt(ctx context.Context, channel domain.Channel, id string, at time.Time) (int, error)
	// Transition moves a row from one status to another. It returns
	// repository.ErrConflict when the row is not currently in from.
	Transition(ctx context.Context, channel domain.Channel, id string, from []domain.CodeStatus, to domain.CodeStatus) error
}
