package port

import (
	"context"
	"time"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	UpdateContact(ctx context.Context, id string, channel domain.Channel, value string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
