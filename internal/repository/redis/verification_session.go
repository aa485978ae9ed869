package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

const defaultSessionPrefix = "vsession"

type sessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Purpose   string    `json:"purpose"`
	Step      string    `json:"step"`
	Channel   string    `json:"channel"`
	Target    string    `json:"target"`
	CodeID    string    `json:"code_id"`
	NewTarget string    `json:"new_target,omitempty"`
	NewCodeID string    `json:"new_code_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerificationSessionRepository stores verification sessions as JSON values
// expiring together with the session.
type VerificationSessionRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewVerificationSessionRepository constructs the session store.
func NewVerificationSessionRepository(client *redis.Client, keyPrefix string) *VerificationSessionRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	return &VerificationSessionRepository{client: client, prefix: prefix, now: time.Now}
}

// Save writes the session, replacing any previous state.
func (r *VerificationSessionRepository) Save(ctx context.Context, session domain.VerificationSession) error {
	if strings.TrimSpace(session.ID) == "" {
		return errors.New("session id is required")
	}
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	payload, err := json.Marshal(sessionRecord{
		ID:        session.ID,
		UserID:    session.UserID,
		Purpose:   string(session.Purpose),
		Step:      string(session.Step),
		Channel:   string(session.Channel),
		Target:    session.Target,
		CodeID:    session.CodeID,
		NewTarget: session.NewTarget,
		NewCodeID: session.NewCodeID,
		CreatedAt: session.CreatedAt.UTC(),
		ExpiresAt: session.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.key(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Get loads a session. Missing or expired sessions map to repository.ErrNotFound.
func (r *VerificationSessionRepository) Get(ctx context.Context, id string) (*domain.VerificationSession, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &domain.VerificationSession{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Purpose:   domain.Purpose(rec.Purpose),
		Step:      domain.VerificationStep(rec.Step),
		Channel:   domain.Channel(rec.Channel),
		Target:    rec.Target,
		CodeID:    rec.CodeID,
		NewTarget: rec.NewTarget,
		NewCodeID: rec.NewCodeID,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (r *VerificationSessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}

func (r *VerificationSessionRepository) key(id string) string {
	return fmt.Sprintf("%s:%s", r.prefix, id)
}

var _ port.VerificationSessionStore = (*VerificationSessionRepository)(nil)
