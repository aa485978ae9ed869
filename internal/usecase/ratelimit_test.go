package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/config"
)

func perPhoneRule(id string, max int, window time.Duration) domain.RateLimitRule {
	return domain.RateLimitRule{
		ID:        id,
		Name:      id,
		LimitType: domain.LimitPerTarget,
		Window:    window,
		MaxCount:  max,
		Enabled:   true,
	}
}

func sendRequest() domain.SendRequest {
	return domain.SendRequest{
		Channel:    domain.ChannelSMS,
		Target:     "13800138000",
		ClientIP:   "203.0.113.7",
		TemplateID: "SMS_REGISTER",
		Purpose:    domain.PurposeRegister,
	}
}

func TestReserveDeniesSendAboveLimit(t *testing.T) {
	h := newHarness(t, nil)
	h.rules.rules = []domain.RateLimitRule{perPhoneRule("r1", 3, time.Minute)}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, res, err := h.limiter.Reserve(ctx, sendRequest())
		if err != nil || !decision.Allowed || res == nil {
			t.Fatalf("send %d: expected allowed, got %+v err=%v", i+1, decision, err)
		}
		h.clock.Advance(10 * time.Second)
	}

	decision, res, err := h.limiter.Reserve(ctx, sendRequest())
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if decision.Allowed || res != nil {
		t.Fatalf("expected fourth send to be denied, got %+v", decision)
	}
	// oldest send was 30s ago in a 60s window
	if got := decision.RetryAfterSeconds(); got != 30 {
		t.Fatalf("expected retry after 30s, got %d", got)
	}
	if decision.Rule == nil || decision.Rule.ID != "r1" {
		t.Fatalf("expected rule r1 to decide, got %+v", decision.Rule)
	}
	if decision.Reason == "" {
		t.Fatal("expected a user facing reason")
	}
	if got := h.ledger.size("r1:target:13800138000"); got != 3 {
		t.Fatalf("denied send must not be recorded, ledger has %d", got)
	}

	h.clock.Advance(31 * time.Second)
	if decision, _, _ := h.limiter.Reserve(ctx, sendRequest()); !decision.Allowed {
		t.Fatal("expected window to slide and allow the send")
	}
}

func TestCheckRateLimitIsReadOnly(t *testing.T) {
	h := newHarness(t, nil)
	h.rules.rules = []domain.RateLimitRule{perPhoneRule("r1", 1, time.Minute)}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		decision, err := h.limiter.CheckRateLimit(ctx, sendRequest())
		if err != nil || !decision.Allowed {
			t.Fatalf("check %d: expected allowed, got %+v err=%v", i, decision, err)
		}
	}
	if got := h.ledger.size("r1:target:13800138000"); got != 0 {
		t.Fatalf("expected empty ledger, got %d", got)
	}

	if err := h.limiter.RecordSend(ctx, sendRequest()); err != nil {
		t.Fatalf("record: %v", err)
	}
	decision, err := h.limiter.CheckRateLimit(ctx, sendRequest())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected check to deny after a recorded send")
	}
	if decision.RetryAfterSeconds() != 60 {
		t.Fatalf("expected retry after full window, got %d", decision.RetryAfterSeconds())
	}
}

func TestReserveEvaluatesEveryMatchingRule(t *testing.T) {
	h := newHarness(t, nil)
	ipRule := domain.RateLimitRule{
		ID:        "ip",
		Name:      "ip",
		LimitType: domain.LimitPerIP,
		Window:    time.Hour,
		MaxCount:  2,
		Enabled:   true,
		Priority:  10,
	}
	loginOnly := perPhoneRule("login-only", 1, time.Hour)
	loginOnly.Purpose = domain.PurposeLogin
	h.rules.rules = []domain.RateLimitRule{perPhoneRule("phone", 5, time.Hour), ipRule, loginOnly}
	ctx := context.Background()

	first := sendRequest()
	second := sendRequest()
	second.Target = "13900139000"
	third := sendRequest()
	third.Target = "13700137000"

	for _, req := range []domain.SendRequest{first, second} {
		if decision, _, err := h.limiter.Reserve(ctx, req); err != nil || !decision.Allowed {
			t.Fatalf("expected allowed, got %+v err=%v", decision, err)
		}
	}
	decision, _, err := h.limiter.Reserve(ctx, third)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if decision.Allowed || decision.Rule.ID != "ip" {
		t.Fatalf("expected per-ip rule to deny, got %+v", decision)
	}
	if got := h.ledger.size("phone:target:13700137000"); got != 0 {
		t.Fatalf("denied send leaked into another rule window: %d", got)
	}
}

func TestReserveFailsOpenWithoutRules(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < 10; i++ {
		decision, _, err := h.limiter.Reserve(context.Background(), sendRequest())
		if err != nil || !decision.Allowed {
			t.Fatalf("expected fail-open, got %+v err=%v", decision, err)
		}
	}
}

func TestReserveAppliesDefaultRuleWhenNothingMatches(t *testing.T) {
	h := newHarness(t, nil, withDefaultRule(config.DefaultRuleSettings{
		Enabled:   true,
		LimitType: string(domain.LimitPerTarget),
		Window:    time.Minute,
		MaxCount:  1,
	}))
	ctx := context.Background()

	if decision, _, _ := h.limiter.Reserve(ctx, sendRequest()); !decision.Allowed {
		t.Fatal("expected first send allowed")
	}
	decision, _, err := h.limiter.Reserve(ctx, sendRequest())
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if decision.Allowed || decision.Rule.ID != defaultRuleID {
		t.Fatalf("expected default rule to deny, got %+v", decision)
	}
}

func TestReleaseFreesReservedSlot(t *testing.T) {
	h := newHarness(t, nil)
	h.rules.rules = []domain.RateLimitRule{perPhoneRule("r1", 1, time.Minute)}
	ctx := context.Background()

	_, res, err := h.limiter.Reserve(ctx, sendRequest())
	if err != nil || res == nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := h.limiter.Release(ctx, res); err != nil {
		t.Fatalf("release: %v", err)
	}
	if decision, _, _ := h.limiter.Reserve(ctx, sendRequest()); !decision.Allowed {
		t.Fatal("expected released slot to be reusable")
	}
}

func TestRateLimitStorageFailureIsAnError(t *testing.T) {
	h := newHarness(t, nil)
	h.rules.err = errors.New("db down")
	if _, _, err := h.limiter.Reserve(context.Background(), sendRequest()); err == nil {
		t.Fatal("expected storage error")
	}
}

func TestTemplateScopedKeysAreIndependent(t *testing.T) {
	rule := domain.RateLimitRule{ID: "t", LimitType: domain.LimitPerTargetTemplate, Window: time.Minute, MaxCount: 1, Enabled: true}
	a := sendRequest()
	b := sendRequest()
	b.TemplateID = "SMS_LOGIN"

	ka, _ := rule.LedgerKey(a)
	kb, _ := rule.LedgerKey(b)
	if ka == kb {
		t.Fatalf("expected distinct keys per template, both %q", ka)
	}
}

func TestRateLimitExceededErrorRetryFloor(t *testing.T) {
	err := &RateLimitExceededError{RetryAfter: 200 * time.Millisecond}
	if err.RetryAfterSeconds() != 1 {
		t.Fatalf("expected floor of one second, got %d", err.RetryAfterSeconds())
	}
}
