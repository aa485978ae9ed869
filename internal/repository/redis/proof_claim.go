package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
)

const defaultProofClaimPrefix = "captcha_claim"

// ProofClaimRepository records redeemed captcha proofs with SET NX.
type ProofClaimRepository struct {
	client *redis.Client
	prefix string
}

// NewProofClaimRepository constructs the claim store.
func NewProofClaimRepository(client *redis.Client, keyPrefix string) *ProofClaimRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultProofClaimPrefix
	}
	return &ProofClaimRepository{client: client, prefix: prefix}
}

// Claim marks logID as spent. It returns false if another caller got there first.
func (r *ProofClaimRepository) Claim(ctx context.Context, logID string, ttl time.Duration) (bool, error) {
	if strings.TrimSpace(logID) == "" {
		return false, errors.New("log id is required")
	}
	if ttl <= 0 {
		return false, errors.New("ttl must be positive")
	}

	ok, err := r.client.SetNX(ctx, fmt.Sprintf("%s:%s", r.prefix, logID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

var _ port.ProofClaimStore = (*ProofClaimRepository)(nil)
