package captcha

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/logger"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/security"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

const defaultChallengeTTL = 5 * time.Minute

// LocalProvider issues and checks arithmetic challenges without a third party.
// Each challenge accepts a single answer attempt.
type LocalProvider struct {
	store port.LocalChallengeStore
	ttl   time.Duration
	now   func() time.Time
}

func NewLocalProvider(store port.LocalChallengeStore, ttl time.Duration) *LocalProvider {
	if ttl <= 0 {
		ttl = defaultChallengeTTL
	}
	return &LocalProvider{store: store, ttl: ttl, now: time.Now}
}

// WithClock overrides the clock used for challenge expiry.
func (p *LocalProvider) WithClock(clock func() time.Time) *LocalProvider {
	if clock != nil {
		p.now = clock
	}
	return p
}

func (p *LocalProvider) Provider() domain.CaptchaProvider { return domain.ProviderLocal }

func randInt(max int64) (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

// Issue creates an addition or subtraction challenge with a non-negative answer.
func (p *LocalProvider) Issue(ctx context.Context) (domain.LocalChallenge, error) {
	a, err := randInt(20)
	if err != nil {
		return domain.LocalChallenge{}, fmt.Errorf("generate challenge: %w", err)
	}
	b, err := randInt(20)
	if err != nil {
		return domain.LocalChallenge{}, fmt.Errorf("generate challenge: %w", err)
	}
	op, err := randInt(2)
	if err != nil {
		return domain.LocalChallenge{}, fmt.Errorf("generate challenge: %w", err)
	}

	a, b = a+1, b+1
	var question string
	var answer int64
	if op == 0 {
		question = fmt.Sprintf("%d + %d = ?", a, b)
		answer = a + b
	} else {
		if a < b {
			a, b = b, a
		}
		question = fmt.Sprintf("%d - %d = ?", a, b)
		answer = a - b
	}

	id := uuid.NewString()
	if err := p.store.Save(ctx, id, security.HashToken(id+":"+strconv.FormatInt(answer, 10)), p.ttl); err != nil {
		return domain.LocalChallenge{}, fmt.Errorf("store challenge: %w", err)
	}

	return domain.LocalChallenge{
		ID:        id,
		Question:  question,
		ExpiresAt: p.now().Add(p.ttl),
	}, nil
}

func (p *LocalProvider) Verify(ctx context.Context, _ domain.CaptchaConfig, payload domain.CaptchaPayload, _ string) domain.CaptchaResult {
	id := strings.TrimSpace(payload.ChallengeID)
	answer := strings.TrimSpace(payload.Answer)
	if id == "" || answer == "" {
		return failure(msgIncomplete, "")
	}

	stored, err := p.store.Take(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return failure("验证码已过期，请刷新后重试", "")
		}
		logger.WithContext(ctx).Warn("local captcha lookup failed", zap.Error(err))
		return failure(msgUnavailable, "")
	}

	if !security.MatchesHash(id+":"+answer, stored) {
		return failure(msgFailed, "")
	}

	return domain.CaptchaResult{
		Success:   true,
		Message:   "验证通过",
		LotNumber: syntheticLotNumber(domain.ProviderLocal),
	}
}

var (
	_ port.CaptchaVerifier      = (*LocalProvider)(nil)
	_ port.LocalChallengeIssuer = (*LocalProvider)(nil)
	_ port.CaptchaVerifier      = (*GeetestVerifier)(nil)
	_ port.CaptchaVerifier      = (*SiteverifyVerifier)(nil)
)
