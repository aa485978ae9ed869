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
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/config"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/logger"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/security"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/telemetry"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

const (
	defaultProofTTL = 15 * time.Minute

	msgCaptchaPassed      = "验证通过"
	msgCaptchaDisabled    = "人机验证未启用"
	msgCaptchaNotConfig   = "人机验证未配置"
	msgCaptchaUnsupported = "不支持的人机验证方式"
)

// CaptchaLogInput carries everything recorded for one verification attempt.
type CaptchaLogInput struct {
	Config     *domain.CaptchaConfig
	Scene      string
	Provider   domain.CaptchaProvider
	Payload    domain.CaptchaPayload
	Result     domain.CaptchaResult
	ClientIP   string
	UserAgent  string
	Identifier string
}

// VerifySceneInput is the request to verify a captcha for a scene.
type VerifySceneInput struct {
	Scene      string
	Payload    domain.CaptchaPayload
	ClientIP   string
	UserAgent  string
	Identifier string
}

// VerifySceneResult is the outcome of VerifyScene. LotNumber is the proof
// token the client later redeems.
type VerifySceneResult struct {
	Enabled   bool
	Success   bool
	Message   string
	Provider  domain.CaptchaProvider
	LotNumber string
	LogID     string
}

// CaptchaService resolves per-scene captcha configs, dispatches to provider
// verifiers and records verification logs.
type CaptchaService struct {
	cfg       config.CaptchaSettings
	configs   port.CaptchaConfigRepository
	logs      port.CaptchaLogRepository
	claims    port.ProofClaimStore
	events    port.EventPublisher
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	verifiers map[domain.CaptchaProvider]port.CaptchaVerifier
	issuer    port.LocalChallengeIssuer
	now       func() time.Time
}

// NewCaptchaService constructs a CaptchaService with one verifier per provider.
// A verifier that can also issue challenges backs IssueLocalChallenge.
func NewCaptchaService(cfg config.CaptchaSettings, configs port.CaptchaConfigRepository, logs port.CaptchaLogRepository, claims port.ProofClaimStore, events port.EventPublisher, metrics *telemetry.Metrics, logger *zap.Logger, verifiers ...port.CaptchaVerifier) *CaptchaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProofTTL <= 0 {
		cfg.ProofTTL = defaultProofTTL
	}

	svc := &CaptchaService{
		cfg:       cfg,
		configs:   configs,
		logs:      logs,
		claims:    claims,
		events:    events,
		metrics:   metrics,
		logger:    logger,
		verifiers: make(map[domain.CaptchaProvider]port.CaptchaVerifier, len(verifiers)),
		now:       time.Now,
	}
	for _, v := range verifiers {
		if v == nil {
			continue
		}
		svc.verifiers[v.Provider()] = v
		if issuer, ok := v.(port.LocalChallengeIssuer); ok {
			svc.issuer = issuer
		}
	}
	return svc
}

// WithClock allows tests to override the clock used by the service.
func (s *CaptchaService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// GetConfig returns the active config serving scene, or nil when captcha is
// disabled for it.
func (s *CaptchaService) GetConfig(ctx context.Context, scene string) (*domain.CaptchaConfig, error) {
	scene = strings.TrimSpace(scene)
	if scene == "" {
		return nil, nil
	}

	cfg, err := s.configs.FindForScene(ctx, scene)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find captcha config: %w", err)
	}
	if !cfg.Active() || !cfg.ServesScene(scene) {
		return nil, nil
	}
	return cfg, nil
}

// PublicConfig returns the client-safe view of the scene's config.
func (s *CaptchaService) PublicConfig(ctx context.Context, scene string) (domain.CaptchaPublicConfig, error) {
	cfg, err := s.GetConfig(ctx, scene)
	if err != nil {
		return domain.CaptchaPublicConfig{}, err
	}
	if cfg == nil {
		return domain.CaptchaPublicConfig{Enabled: false, Scene: scene}, nil
	}
	return cfg.Public(scene), nil
}

// GeetestPublicConfig is PublicConfig restricted to geetest configs.
func (s *CaptchaService) GeetestPublicConfig(ctx context.Context, scene string) (domain.CaptchaPublicConfig, error) {
	pub, err := s.PublicConfig(ctx, scene)
	if err != nil {
		return domain.CaptchaPublicConfig{}, err
	}
	if pub.Enabled && pub.Provider != domain.ProviderGeetest {
		return domain.CaptchaPublicConfig{Enabled: false, Scene: scene}, nil
	}
	return pub, nil
}

// IssueLocalChallenge creates a challenge for the built-in provider.
func (s *CaptchaService) IssueLocalChallenge(ctx context.Context) (domain.LocalChallenge, error) {
	if s.issuer == nil {
		return domain.LocalChallenge{}, ErrCaptchaUnavailable
	}
	return s.issuer.Issue(ctx)
}

// Verify runs the provider verifier for cfg. Provider failures are returned
// as unsuccessful results.
func (s *CaptchaService) Verify(ctx context.Context, cfg domain.CaptchaConfig, payload domain.CaptchaPayload, clientIP string) domain.CaptchaResult {
	verifier, ok := s.verifiers[cfg.Provider]
	if !ok {
		s.logger.Warn("no verifier registered for captcha provider", zap.String("provider", string(cfg.Provider)))
		return domain.CaptchaResult{Success: false, Message: msgCaptchaUnsupported}
	}

	result := verifier.Verify(ctx, cfg, payload, clientIP)
	s.metrics.CaptchaVerified(string(cfg.Provider), result.Success)
	return result
}

// SaveVerifyLog appends a verification log row and returns its id.
func (s *CaptchaService) SaveVerifyLog(ctx context.Context, in CaptchaLogInput) (string, error) {
	now := s.now()
	entry := domain.CaptchaVerifyLog{
		ID:        uuid.NewString(),
		Scene:     in.Scene,
		Provider:  in.Provider,
		Success:   in.Result.Success,
		Result:    in.Result.Raw,
		ClientIP:  in.ClientIP,
		UserAgent: in.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.ProofTTL),
	}
	if in.Config != nil {
		entry.ConfigID = stringPtr(in.Config.ID)
	}
	if !in.Result.Success && in.Result.Message != "" {
		entry.ErrorMessage = stringPtr(in.Result.Message)
	}

	// Rejected rows keep the submitted proof so failures can be traced.
	// They are never redeemable because redemption requires success.
	if in.Provider == domain.ProviderGeetest {
		entry.LotNumber = stringPtr(firstNonEmpty(in.Result.LotNumber, in.Payload.LotNumber))
		entry.PassToken = stringPtr(in.Payload.PassToken)
		entry.GenTime = stringPtr(in.Payload.GenTime)
	} else {
		entry.Challenge = stringPtr(firstNonEmpty(in.Result.LotNumber, submittedProof(in.Payload)))
	}

	switch kind, normalized := domain.ClassifyIdentifier(in.Identifier); kind {
	case domain.IdentifierPhone:
		entry.Phone = stringPtr(normalized)
	case domain.IdentifierEmail:
		entry.Email = stringPtr(normalized)
	}

	if err := s.logs.Create(ctx, entry); err != nil {
		return "", fmt.Errorf("save captcha log: %w", err)
	}
	return entry.ID, nil
}

// submittedProof identifies a rejected non-geetest attempt. Provider tokens
// are long and single-use, so only a digest prefix is stored.
func submittedProof(p domain.CaptchaPayload) string {
	if id := strings.TrimSpace(p.ChallengeID); id != "" {
		return id
	}
	token := strings.TrimSpace(p.Token)
	if token == "" {
		return ""
	}
	return "sha256:" + security.HashToken(token)[:16]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// VerifyScene resolves the scene's config, verifies the payload and records
// the attempt. A scene without config passes unless captcha is required.
func (s *CaptchaService) VerifyScene(ctx context.Context, in VerifySceneInput) (*VerifySceneResult, error) {
	cfg, err := s.GetConfig(ctx, in.Scene)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		if s.cfg.RequireCaptcha {
			return &VerifySceneResult{Enabled: false, Success: false, Message: msgCaptchaNotConfig}, nil
		}
		return &VerifySceneResult{Enabled: false, Success: true, Message: msgCaptchaDisabled}, nil
	}

	result := s.Verify(ctx, *cfg, in.Payload, in.ClientIP)
	logID, err := s.SaveVerifyLog(ctx, CaptchaLogInput{
		Config:     cfg,
		Scene:      in.Scene,
		Provider:   cfg.Provider,
		Payload:    in.Payload,
		Result:     result,
		ClientIP:   in.ClientIP,
		UserAgent:  in.UserAgent,
		Identifier: in.Identifier,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("captcha verified",
		zap.String("request_id", logger.RequestIDFromContext(ctx)),
		zap.String("scene", in.Scene),
		zap.String("provider", string(cfg.Provider)),
		zap.Bool("success", result.Success),
		zap.String("ip", logger.MaskIP(in.ClientIP)),
	)

	if s.events != nil {
		publishEvent(ctx, s.logger, domain.EventCaptchaVerified, func(ctx context.Context) error {
			return s.events.PublishCaptchaVerified(ctx, domain.CaptchaVerifiedEvent{
				EventID:    uuid.NewString(),
				LogID:      logID,
				Scene:      in.Scene,
				Provider:   cfg.Provider,
				Success:    result.Success,
				ClientIP:   in.ClientIP,
				VerifiedAt: s.now(),
			})
		})
	}

	out := &VerifySceneResult{
		Enabled:  true,
		Success:  result.Success,
		Message:  result.Message,
		Provider: cfg.Provider,
		LogID:    logID,
	}
	if result.Success {
		out.LotNumber = result.LotNumber
		if out.Message == "" {
			out.Message = msgCaptchaPassed
		}
	}
	return out, nil
}

func stringPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
