package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

const defaultChallengePrefix = "captcha_local"

// LocalChallengeRepository holds answer hashes for locally issued challenges.
type LocalChallengeRepository struct {
	client *redis.Client
	prefix string
}

// NewLocalChallengeRepository constructs the challenge store.
func NewLocalChallengeRepository(client *redis.Client, keyPrefix string) *LocalChallengeRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultChallengePrefix
	}
	return &LocalChallengeRepository{client: client, prefix: prefix}
}

// Save stores the answer hash for ttl.
func (r *LocalChallengeRepository) Save(ctx context.Context, id, answerHash string, ttl time.Duration) error {
	switch {
	case strings.TrimSpace(id) == "":
		return errors.New("challenge id is required")
	case answerHash == "":
		return errors.New("answer hash is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	if err := r.client.Set(ctx, r.key(id), answerHash, ttl).Err(); err != nil {
		return fmt.Errorf("redis set challenge: %w", err)
	}
	return nil
}

// Take returns the stored hash and deletes it, so every challenge gets one attempt.
func (r *LocalChallengeRepository) Take(ctx context.Context, id string) (string, error) {
	val, err := r.client.GetDel(ctx, r.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis getdel challenge: %w", err)
	}
	return val, nil
}

func (r *LocalChallengeRepository) key(id string) string {
	return fmt.Sprintf("%s:%s", r.prefix, id)
}

var _ port.LocalChallengeStore = (*LocalChallengeRepository)(nil)
