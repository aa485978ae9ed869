package port

import (
	"context"
	"time"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

// AuthTokenRepository manages opaque login, access, and refresh tokens.
type AuthTokenRepository interface {
	Create(ctx context.Context, token domain.AuthToken) error
	GetByHash(ctx context.Context, tokenType domain.TokenType, hash string) (*domain.AuthToken, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	// RevokeAllForUser revokes every active token of the user and returns how many changed.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
}
