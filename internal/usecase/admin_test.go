package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

func TestAdminRuleLifecycle(t *testing.T) {
	rules := &memoryRuleRepository{}
	svc := NewAdminService(rules, &memoryCaptchaConfigs{}, zaptest.NewLogger(t))
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, RuleInput{
		Name:      "per phone",
		LimitType: domain.LimitPerTarget,
		Window:    90*time.Second + 300*time.Millisecond,
		MaxCount:  1,
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rule.Window != 90*time.Second {
		t.Fatalf("expected window truncated to seconds, got %s", rule.Window)
	}

	if err := svc.SetRuleEnabled(ctx, rule.ID, false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	enabled, _ := rules.ListEnabled(ctx)
	if len(enabled) != 0 {
		t.Fatal("expected rule disabled")
	}

	updated, err := svc.UpdateRule(ctx, rule.ID, RuleInput{Name: "per ip", LimitType: domain.LimitPerIP, Window: time.Hour, MaxCount: 10, Enabled: true, Priority: 5})
	if err != nil || updated.LimitType != domain.LimitPerIP || updated.Priority != 5 {
		t.Fatalf("update: %+v err=%v", updated, err)
	}
	if err := svc.SetRuleEnabled(ctx, "missing", true); !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAdminRuleValidation(t *testing.T) {
	svc := NewAdminService(&memoryRuleRepository{}, &memoryCaptchaConfigs{}, nil)
	bad := []RuleInput{
		{LimitType: domain.LimitPerIP, Window: time.Minute, MaxCount: 1},
		{Name: "x", LimitType: "per_planet", Window: time.Minute, MaxCount: 1},
		{Name: "x", LimitType: domain.LimitPerIP, Window: 0, MaxCount: 1},
		{Name: "x", LimitType: domain.LimitPerIP, Window: time.Minute, MaxCount: 0},
		{Name: "x", Purpose: "shopping", LimitType: domain.LimitPerIP, Window: time.Minute, MaxCount: 1},
	}
	for i, in := range bad {
		if _, err := svc.CreateRule(context.Background(), in); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("case %d: expected invalid rule, got %v", i, err)
		}
	}
}

func TestAdminCaptchaConfig(t *testing.T) {
	configs := &memoryCaptchaConfigs{}
	svc := NewAdminService(&memoryRuleRepository{}, configs, nil)
	ctx := context.Background()

	if _, err := svc.CreateCaptchaConfig(ctx, CaptchaConfigInput{Name: "g", Provider: domain.ProviderGeetest, Scenes: []string{"login"}, Status: domain.CaptchaStatusActive}); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected geetest credentials required, got %v", err)
	}

	cfg, err := svc.CreateCaptchaConfig(ctx, CaptchaConfigInput{
		Name:      "cf",
		Provider:  domain.ProviderTurnstile,
		SecretKey: "secret",
		Scenes:    []string{" Login ", "login", "register"},
		Enabled:   true,
		Status:    domain.CaptchaStatusActive,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(cfg.Scenes) != 2 || cfg.Scenes[0] != "login" {
		t.Fatalf("expected normalized scenes, got %v", cfg.Scenes)
	}

	found, err := configs.FindForScene(ctx, "register")
	if err != nil || found.ID != cfg.ID {
		t.Fatalf("expected config to serve register, got %+v err=%v", found, err)
	}
	if err := svc.SetCaptchaConfigEnabled(ctx, cfg.ID, false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := configs.FindForScene(ctx, "register"); err == nil {
		t.Fatal("expected disabled config to stop serving")
	}
}
