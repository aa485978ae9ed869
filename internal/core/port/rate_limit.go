package port

import (
	"context"
	"time"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

// RateLimitRuleRepository reads and administers rate limit rules.
type RateLimitRuleRepository interface {
	// ListEnabled returns enabled rules ordered by priority, highest first.
	ListEnabled(ctx context.Context) ([]domain.RateLimitRule, error)
	List(ctx context.Context) ([]domain.RateLimitRule, error)
	GetByID(ctx context.Context, id string) (*domain.RateLimitRule, error)
	Create(ctx context.Context, rule domain.RateLimitRule) error
	Update(ctx context.Context, rule domain.RateLimitRule) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// LedgerSlot is one rule window a send is counted against.
type LedgerSlot struct {
	Key      string
	Window   time.Duration
	MaxCount int
}

// LedgerVerdict is the outcome of an atomic reservation. Blocked is the
// index of the first full slot when Allowed is false.
type LedgerVerdict struct {
	Allowed bool
	Blocked int
	Oldest  time.Time
}

// SendLedger keeps sliding-window send history per ledger key.
type SendLedger interface {
	// Count reports sends inside the window ending at now and the oldest of them.
	Count(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error)
	// Reserve records member in every slot only if none of them is full.
	Reserve(ctx context.Context, slots []LedgerSlot, member string, now time.Time) (LedgerVerdict, error)
	// Record appends member to every slot unconditionally.
	Record(ctx context.Context, slots []LedgerSlot, member string, now time.Time) error
	Release(ctx context.Context, keys []string, member string) error
}
