package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/logger"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

// RuleInput is an administrator rate limit rule definition.
type RuleInput struct {
	Name       string
	Purpose    domain.Purpose
	TemplateID string
	LimitType  domain.LimitType
	Window     time.Duration
	MaxCount   int
	Enabled    bool
	Priority   int
}

// CaptchaConfigInput is an administrator captcha config definition.
type CaptchaConfigInput struct {
	Name      string
	Provider  domain.CaptchaProvider
	AppID     string
	AppSecret string
	SiteKey   string
	SecretKey string
	Endpoint  string
	MinScore  float64
	Scenes    []string
	Enabled   bool
	Priority  int
	Status    domain.CaptchaConfigStatus
}

// AdminService manages the rate limit rule and captcha config tables.
type AdminService struct {
	rules   port.RateLimitRuleRepository
	configs port.CaptchaConfigRepository
	logger  *zap.Logger
	now     func() time.Time
}

func NewAdminService(rules port.RateLimitRuleRepository, configs port.CaptchaConfigRepository, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{rules: rules, configs: configs, logger: logger, now: time.Now}
}

// WithClock allows tests to override the clock used by the service.
func (s *AdminService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

func validateRule(in RuleInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if in.Purpose != "" && !in.Purpose.Valid() {
		return fmt.Errorf("%w: unknown purpose %q", ErrInvalidRule, in.Purpose)
	}
	if !in.LimitType.Valid() {
		return fmt.Errorf("%w: unknown limit type %q", ErrInvalidRule, in.LimitType)
	}
	if in.Window < time.Second {
		return fmt.Errorf("%w: window must be at least one second", ErrInvalidRule)
	}
	if in.MaxCount <= 0 {
		return fmt.Errorf("%w: max_count must be positive", ErrInvalidRule)
	}
	return nil
}

func (s *AdminService) ListRules(ctx context.Context) ([]domain.RateLimitRule, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rate limit rules: %w", err)
	}
	return rules, nil
}

func (s *AdminService) CreateRule(ctx context.Context, in RuleInput) (*domain.RateLimitRule, error) {
	if err := validateRule(in); err != nil {
		return nil, err
	}
	now := s.now()
	rule := domain.RateLimitRule{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(in.Name),
		Purpose:    in.Purpose,
		TemplateID: strings.TrimSpace(in.TemplateID),
		LimitType:  in.LimitType,
		Window:     in.Window.Truncate(time.Second),
		MaxCount:   in.MaxCount,
		Enabled:    in.Enabled,
		Priority:   in.Priority,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("create rate limit rule: %w", err)
	}
	s.logger.Info("rate limit rule created",
		zap.String("request_id", logger.RequestIDFromContext(ctx)),
		zap.String("rule_id", rule.ID),
		zap.String("limit_type", string(rule.LimitType)),
	)
	return &rule, nil
}

func (s *AdminService) UpdateRule(ctx context.Context, id string, in RuleInput) (*domain.RateLimitRule, error) {
	if err := validateRule(in); err != nil {
		return nil, err
	}
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, policyLookupError(err)
	}
	rule.Name = strings.TrimSpace(in.Name)
	rule.Purpose = in.Purpose
	rule.TemplateID = strings.TrimSpace(in.TemplateID)
	rule.LimitType = in.LimitType
	rule.Window = in.Window.Truncate(time.Second)
	rule.MaxCount = in.MaxCount
	rule.Enabled = in.Enabled
	rule.Priority = in.Priority
	rule.UpdatedAt = s.now()

	if err := s.rules.Update(ctx, *rule); err != nil {
		return nil, policyLookupError(err)
	}
	return rule, nil
}

func (s *AdminService) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	if err := s.rules.SetEnabled(ctx, id, enabled); err != nil {
		return policyLookupError(err)
	}
	s.logger.Info("rate limit rule toggled",
		zap.String("request_id", logger.RequestIDFromContext(ctx)),
		zap.String("rule_id", id),
		zap.Bool("enabled", enabled),
	)
	return nil
}

func normalizeScenes(scenes []string) []string {
	out := make([]string, 0, len(scenes))
	seen := make(map[string]struct{}, len(scenes))
	for _, scene := range scenes {
		scene = strings.ToLower(strings.TrimSpace(scene))
		if scene == "" {
			continue
		}
		if _, ok := seen[scene]; ok {
			continue
		}
		seen[scene] = struct{}{}
		out = append(out, scene)
	}
	return out
}

func validateCaptchaConfig(in CaptchaConfigInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if !in.Provider.Valid() {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidRule, in.Provider)
	}
	if len(normalizeScenes(in.Scenes)) == 0 {
		return fmt.Errorf("%w: at least one scene is required", ErrInvalidRule)
	}
	if in.MinScore < 0 || in.MinScore > 1 {
		return fmt.Errorf("%w: min_score must be within [0,1]", ErrInvalidRule)
	}
	switch in.Provider {
	case domain.ProviderGeetest:
		if in.AppID == "" || in.AppSecret == "" {
			return fmt.Errorf("%w: geetest requires app_id and app_secret", ErrInvalidRule)
		}
	case domain.ProviderTurnstile, domain.ProviderRecaptcha, domain.ProviderHCaptcha:
		if in.SecretKey == "" {
			return fmt.Errorf("%w: %s requires secret_key", ErrInvalidRule, in.Provider)
		}
	}
	if in.Status != domain.CaptchaStatusInactive && in.Status != domain.CaptchaStatusActive {
		return fmt.Errorf("%w: unknown status %d", ErrInvalidRule, in.Status)
	}
	return nil
}

func applyCaptchaInput(cfg *domain.CaptchaConfig, in CaptchaConfigInput) {
	cfg.Name = strings.TrimSpace(in.Name)
	cfg.Provider = in.Provider
	cfg.AppID = strings.TrimSpace(in.AppID)
	cfg.AppSecret = in.AppSecret
	cfg.SiteKey = strings.TrimSpace(in.SiteKey)
	cfg.SecretKey = in.SecretKey
	cfg.Endpoint = strings.TrimSpace(in.Endpoint)
	cfg.MinScore = in.MinScore
	cfg.Scenes = normalizeScenes(in.Scenes)
	cfg.Enabled = in.Enabled
	cfg.Priority = in.Priority
	cfg.Status = in.Status
}

func (s *AdminService) ListCaptchaConfigs(ctx context.Context) ([]domain.CaptchaConfig, error) {
	configs, err := s.configs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list captcha configs: %w", err)
	}
	return configs, nil
}

func (s *AdminService) CreateCaptchaConfig(ctx context.Context, in CaptchaConfigInput) (*domain.CaptchaConfig, error) {
	if err := validateCaptchaConfig(in); err != nil {
		return nil, err
	}
	now := s.now()
	cfg := domain.CaptchaConfig{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	applyCaptchaInput(&cfg, in)

	if err := s.configs.Create(ctx, cfg); err != nil {
		return nil, fmt.Errorf("create captcha config: %w", err)
	}
	s.logger.Info("captcha config created",
		zap.String("request_id", logger.RequestIDFromContext(ctx)),
		zap.String("config_id", cfg.ID),
		zap.String("provider", string(cfg.Provider)),
		zap.Strings("scenes", cfg.Scenes),
	)
	return &cfg, nil
}

func (s *AdminService) UpdateCaptchaConfig(ctx context.Context, id string, in CaptchaConfigInput) (*domain.CaptchaConfig, error) {
	if err := validateCaptchaConfig(in); err != nil {
		return nil, err
	}
	cfg, err := s.configs.GetByID(ctx, id)
	if err != nil {
		return nil, policyLookupError(err)
	}
	applyCaptchaInput(cfg, in)
	cfg.UpdatedAt = s.now()

	if err := s.configs.Update(ctx, *cfg); err != nil {
		return nil, policyLookupError(err)
	}
	return cfg, nil
}

func (s *AdminService) SetCaptchaConfigEnabled(ctx context.Context, id string, enabled bool) error {
	if err := s.configs.SetEnabled(ctx, id, enabled); err != nil {
		return policyLookupError(err)
	}
	s.logger.Info("captcha config toggled",
		zap.String("request_id", logger.RequestIDFromContext(ctx)),
		zap.String("config_id", id),
		zap.Bool("enabled", enabled),
	)
	return nil
}

func policyLookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrPolicyNotFound
	}
	return err
}
