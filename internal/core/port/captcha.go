package port

import (
	"context"
	"time"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

// CaptchaConfigRepository resolves and administers provider configurations.
type CaptchaConfigRepository interface {
	// FindForScene returns the highest priority active config serving scene.
	FindForScene(ctx context.Context, scene string) (*domain.CaptchaConfig, error)
	List(ctx context.Context) ([]domain.CaptchaConfig, error)
	GetByID(ctx context.Context, id string) (*domain.CaptchaConfig, error)
	Create(ctx context.Context, cfg domain.CaptchaConfig) error
	Update(ctx context.Context, cfg domain.CaptchaConfig) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// CaptchaLogRepository appends verification logs and looks up proofs.
type CaptchaLogRepository interface {
	Create(ctx context.Context, log domain.CaptchaVerifyLog) error
	// FindRedeemable returns the newest successful, unexpired, original
	// (non-redemption) log matching the query.
	FindRedeemable(ctx context.Context, query domain.ProofQuery, now time.Time) (*domain.CaptchaVerifyLog, error)
}

// ProofClaimStore marks proofs as spent when single-use redemption is on.
type ProofClaimStore interface {
	// Claim returns false when the proof was already claimed.
	Claim(ctx context.Context, logID string, ttl time.Duration) (bool, error)
}

// LocalChallengeStore keeps hashed answers for server-issued challenges.
type LocalChallengeStore interface {
	Save(ctx context.Context, id string, answerHash string, ttl time.Duration) error
	// Take returns and deletes the stored answer hash.
	Take(ctx context.Context, id string) (string, error)
}

// LocalChallengeIssuer creates challenges for the local provider.
type LocalChallengeIssuer interface {
	Issue(ctx context.Context) (domain.LocalChallenge, error)
}

// CaptchaVerifier checks a client payload with one provider. Transport and
// provider failures are folded into an unsuccessful result.
type CaptchaVerifier interface {
	Provider() domain.CaptchaProvider
	Verify(ctx context.Context, cfg domain.CaptchaConfig, payload domain.CaptchaPayload, clientIP string) domain.CaptchaResult
}
