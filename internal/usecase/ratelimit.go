package usecase

import (
	"context"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/config"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/logger"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/telemetry"
)

const defaultRuleID = "default"

// Reservation identifies the ledger entries a successful Reserve created.
type Reservation struct {
	Member string
	Keys   []string
}

type boundRule struct {
	rule domain.RateLimitRule
	key  string
}

// RateLimitService evaluates administrator rate limit rules against the send ledger.
type RateLimitService struct {
	rules       port.RateLimitRuleRepository
	ledger      port.SendLedger
	defaultRule *domain.RateLimitRule
	metrics     *telemetry.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewRateLimitService constructs a RateLimitService. The default rule is used
// only when no stored rule applies to a send.
func NewRateLimitService(rules port.RateLimitRuleRepository, ledger port.SendLedger, defaults config.DefaultRuleSettings, metrics *telemetry.Metrics, logger *zap.Logger) *RateLimitService {
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &RateLimitService{
		rules:   rules,
		ledger:  ledger,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}

	if defaults.Enabled && defaults.MaxCount > 0 && defaults.Window > 0 {
		svc.defaultRule = &domain.RateLimitRule{
			ID:        defaultRuleID,
			Name:      "default",
			LimitType: domain.LimitType(defaults.LimitType),
			Window:    defaults.Window,
			MaxCount:  defaults.MaxCount,
			Enabled:   true,
		}
	}

	return svc
}

// WithClock allows tests to override the clock used by the service.
func (s *RateLimitService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

func (s *RateLimitService) applicable(ctx context.Context, req domain.SendRequest) ([]boundRule, error) {
	rules, err := s.rules.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rate limit rules: %w", err)
	}

	bound := make([]boundRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Applies(req) {
			continue
		}
		key, ok := rule.LedgerKey(req)
		if !ok {
			continue
		}
		bound = append(bound, boundRule{rule: rule, key: key})
	}

	if len(bound) == 0 && s.defaultRule != nil {
		if key, ok := s.defaultRule.LedgerKey(req); ok {
			bound = append(bound, boundRule{rule: *s.defaultRule, key: key})
		}
	}
	return bound, nil
}

// CheckRateLimit reports whether a send would be allowed. It never records anything.
func (s *RateLimitService) CheckRateLimit(ctx context.Context, req domain.SendRequest) (domain.RateLimitDecision, error) {
	bound, err := s.applicable(ctx, req)
	if err != nil {
		return domain.RateLimitDecision{}, err
	}

	now := s.now()
	for _, b := range bound {
		count, oldest, err := s.ledger.Count(ctx, b.key, b.rule.Window, now)
		if err != nil {
			return domain.RateLimitDecision{}, fmt.Errorf("count sends: %w", err)
		}
		if count >= b.rule.MaxCount {
			return s.deny(ctx, req, b.rule, oldest, now), nil
		}
	}

	return domain.RateLimitDecision{Allowed: true}, nil
}

// Reserve atomically checks every applicable rule and records the send in all
// of their windows when none is exhausted.
func (s *RateLimitService) Reserve(ctx context.Context, req domain.SendRequest) (domain.RateLimitDecision, *Reservation, error) {
	bound, err := s.applicable(ctx, req)
	if err != nil {
		return domain.RateLimitDecision{}, nil, err
	}

	reservation := &Reservation{Member: uuid.NewString()}
	if len(bound) == 0 {
		return domain.RateLimitDecision{Allowed: true}, reservation, nil
	}

	slots := make([]port.LedgerSlot, 0, len(bound))
	for _, b := range bound {
		slots = append(slots, port.LedgerSlot{Key: b.key, Window: b.rule.Window, MaxCount: b.rule.MaxCount})
		reservation.Keys = append(reservation.Keys, b.key)
	}

	now := s.now()
	verdict, err := s.ledger.Reserve(ctx, slots, reservation.Member, now)
	if err != nil {
		return domain.RateLimitDecision{}, nil, fmt.Errorf("reserve send: %w", err)
	}
	if !verdict.Allowed {
		idx := verdict.Blocked
		if idx < 0 || idx >= len(bound) {
			idx = 0
		}
		return s.deny(ctx, req, bound[idx].rule, verdict.Oldest, now), nil, nil
	}

	return domain.RateLimitDecision{Allowed: true}, reservation, nil
}

// Release undoes a reservation, typically after a failed dispatch.
func (s *RateLimitService) Release(ctx context.Context, reservation *Reservation) error {
	if reservation == nil || len(reservation.Keys) == 0 {
		return nil
	}
	if err := s.ledger.Release(ctx, reservation.Keys, reservation.Member); err != nil {
		return fmt.Errorf("release send: %w", err)
	}
	return nil
}

// RecordSend appends a send to every applicable rule window without checking limits.
func (s *RateLimitService) RecordSend(ctx context.Context, req domain.SendRequest) error {
	bound, err := s.applicable(ctx, req)
	if err != nil {
		return err
	}
	if len(bound) == 0 {
		return nil
	}

	slots := make([]port.LedgerSlot, 0, len(bound))
	for _, b := range bound {
		slots = append(slots, port.LedgerSlot{Key: b.key, Window: b.rule.Window, MaxCount: b.rule.MaxCount})
	}
	if err := s.ledger.Record(ctx, slots, uuid.NewString(), s.now()); err != nil {
		return fmt.Errorf("record send: %w", err)
	}
	return nil
}

func (s *RateLimitService) deny(ctx context.Context, req domain.SendRequest, rule domain.RateLimitRule, oldest, now time.Time) domain.RateLimitDecision {
	retry := rule.Window
	if !oldest.IsZero() {
		retry = oldest.Add(rule.Window).Sub(now)
	}
	if retry < time.Second {
		retry = time.Second
	}

	decision := domain.RateLimitDecision{
		Allowed:    false,
		RetryAfter: retry,
		Rule:       &rule,
	}
	decision.Reason = fmt.Sprintf("发送过于频繁，请在%d秒后重试", decision.RetryAfterSeconds())

	s.metrics.RateLimitDenied(string(req.Purpose), string(rule.LimitType))
	s.logger.Info("send denied by rate limit",
		zap.String("request_id", logger.RequestIDFromContext(ctx)),
		zap.String("rule_id", rule.ID),
		zap.String("limit_type", string(rule.LimitType)),
		zap.String("purpose", string(req.Purpose)),
		zap.String("target", logger.MaskTarget(req.Target)),
		zap.String("ip", logger.MaskIP(req.ClientIP)),
		zap.Duration("retry_after", retry),
	)

	return decision
}
