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
	defaultCodeLength        = 6
	defaultCodeTTL           = 10 * time.Minute
	defaultMaxVerifyAttempts = 5

	sceneSendSMS   = "send_sms"
	sceneSendEmail = "send_email"
)

// SendCodeInput describes a request to issue a verification code.
type SendCodeInput struct {
	Identifier   string
	Purpose      domain.Purpose
	ClientIP     string
	UserAgent    string
	UserID       string
	CaptchaToken string
}

// SendCodeResult is returned once a code has been dispatched.
type SendCodeResult struct {
	CodeID       string
	Channel      domain.Channel
	MaskedTarget string
	ExpiresAt    time.Time
	ExpiresIn    time.Duration
}

// VerifyCodeInput carries a submitted code.
type VerifyCodeInput struct {
	Identifier string
	Purpose    domain.Purpose
	Code       string
}

// VerificationCodeService issues and checks SMS and email verification codes.
type VerificationCodeService struct {
	codes   port.VerificationCodeRepository
	limiter *RateLimitService
	captcha *CaptchaService
	sender  port.CodeSender
	events  port.EventPublisher
	metrics *telemetry.Metrics
	logger  *zap.Logger
	cfg     config.VerificationSettings
	now     func() time.Time
}

// NewVerificationCodeService constructs a VerificationCodeService. captcha may
// be nil, in which case sends are not gated by a captcha proof.
func NewVerificationCodeService(cfg config.VerificationSettings, codes port.VerificationCodeRepository, limiter *RateLimitService, captcha *CaptchaService, sender port.CodeSender, events port.EventPublisher, metrics *telemetry.Metrics, logger *zap.Logger) *VerificationCodeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = defaultCodeLength
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = defaultCodeTTL
	}
	if cfg.MaxVerifyAttempts <= 0 {
		cfg.MaxVerifyAttempts = defaultMaxVerifyAttempts
	}

	return &VerificationCodeService{
		codes:   codes,
		limiter: limiter,
		captcha: captcha,
		sender:  sender,
		events:  events,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *VerificationCodeService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

func resolveTarget(identifier string) (domain.Channel, string, error) {
	kind, normalized := domain.ClassifyIdentifier(identifier)
	channel, ok := domain.ChannelFor(kind)
	if !ok {
		return "", "", ErrInvalidIdentifier
	}
	return channel, normalized, nil
}

func sendScene(channel domain.Channel) string {
	if channel == domain.ChannelEmail {
		return sceneSendEmail
	}
	return sceneSendSMS
}

func codeDigest(id, code string) string {
	return security.HashToken(id + ":" + code)
}

// SendCode issues a code: captcha gate, rate limit reservation, persist,
// dispatch. A failed dispatch releases the reservation and burns the row.
func (s *VerificationCodeService) SendCode(ctx context.Context, in SendCodeInput) (*SendCodeResult, error) {
	if !in.Purpose.Valid() {
		return nil, ErrInvalidPurpose
	}
	channel, target, err := resolveTarget(in.Identifier)
	if err != nil {
		return nil, err
	}

	if s.captcha != nil {
		if err := s.captcha.RequireProof(ctx, sendScene(channel), in.CaptchaToken, target, in.ClientIP, in.UserAgent); err != nil {
			return nil, err
		}
	}

	templateID := s.cfg.TemplateIDs[string(in.Purpose)]
	req := domain.SendRequest{
		Channel:    channel,
		Target:     target,
		ClientIP:   in.ClientIP,
		TemplateID: templateID,
		Purpose:    in.Purpose,
	}

	var reservation *Reservation
	if s.limiter != nil {
		decision, res, err := s.limiter.Reserve(ctx, req)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			s.metrics.CodeSent(string(channel), string(in.Purpose), "rate_limited")
			return nil, rateLimitError(decision)
		}
		reservation = res
	}

	plain, err := security.GenerateNumericCode(s.cfg.CodeLength)
	if err != nil {
		s.release(ctx, reservation)
		return nil, fmt.Errorf("generate code: %w", err)
	}

	now := s.now()
	code := domain.VerificationCode{
		ID:         uuid.NewString(),
		Channel:    channel,
		Target:     target,
		Purpose:    in.Purpose,
		TemplateID: templateID,
		Status:     domain.CodeStatusIssued,
		ClientIP:   in.ClientIP,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.CodeTTL),
	}
	code.CodeHash = codeDigest(code.ID, plain)
	if uid := strings.TrimSpace(in.UserID); uid != "" {
		code.UserID = &uid
	}

	if err := s.codes.Create(ctx, code); err != nil {
		s.release(ctx, reservation)
		return nil, fmt.Errorf("store verification code: %w", err)
	}

	masked := logger.MaskTarget(target)
	sendErr := s.sender.Send(ctx, domain.CodeMessage{
		Channel:    channel,
		Target:     target,
		Code:       plain,
		Purpose:    in.Purpose,
		TemplateID: templateID,
		ExpiresIn:  s.cfg.CodeTTL,
	})
	if sendErr != nil {
		s.release(ctx, reservation)
		if err := s.codes.Transition(ctx, channel, code.ID, []domain.CodeStatus{domain.CodeStatusIssued}, domain.CodeStatusConsumed); err != nil {
			s.logger.Error("failed to burn undelivered code", zap.String("code_id", code.ID), zap.Error(err))
		}
		s.metrics.CodeSent(string(channel), string(in.Purpose), "dispatch_failed")
		s.logger.Warn("verification code delivery failed",
			zap.String("request_id", logger.RequestIDFromContext(ctx)),
			zap.String("code_id", code.ID),
			zap.String("channel", string(channel)),
			zap.String("target", masked),
			zap.Error(sendErr),
		)
		s.publishIssued(ctx, code, masked, false)
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, sendErr)
	}

	s.metrics.CodeSent(string(channel), string(in.Purpose), "sent")
	s.logger.Info("verification code sent",
		zap.String("request_id", logger.RequestIDFromContext(ctx)),
		zap.String("code_id", code.ID),
		zap.String("channel", string(channel)),
		zap.String("purpose", string(in.Purpose)),
		zap.String("target", masked),
	)
	s.publishIssued(ctx, code, masked, true)

	return &SendCodeResult{
		CodeID:       code.ID,
		Channel:      channel,
		MaskedTarget: masked,
		ExpiresAt:    code.ExpiresAt,
		ExpiresIn:    s.cfg.CodeTTL,
	}, nil
}

func (s *VerificationCodeService) release(ctx context.Context, reservation *Reservation) {
	if s.limiter == nil || reservation == nil {
		return
	}
	if err := s.limiter.Release(ctx, reservation); err != nil {
		s.logger.Warn("failed to release rate limit reservation", zap.Error(err))
	}
}

func (s *VerificationCodeService) publishIssued(ctx context.Context, code domain.VerificationCode, masked string, delivered bool) {
	if s.events == nil {
		return
	}
	publishEvent(ctx, s.logger, domain.EventCodeIssued, func(ctx context.Context) error {
		return s.events.PublishCodeIssued(ctx, domain.CodeIssuedEvent{
			EventID:      uuid.NewString(),
			CodeID:       code.ID,
			Channel:      code.Channel,
			Purpose:      code.Purpose,
			MaskedTarget: masked,
			ClientIP:     code.ClientIP,
			Delivered:    delivered,
			IssuedAt:     code.IssuedAt,
			ExpiresAt:    code.ExpiresAt,
		})
	})
}

// VerifyCode checks a submitted code against the newest Issued row for the
// target and purpose and moves it to FirstVerified on success. A mismatch
// only increments the attempt counter.
func (s *VerificationCodeService) VerifyCode(ctx context.Context, in VerifyCodeInput) (*domain.VerificationCode, error) {
	if !in.Purpose.Valid() {
		return nil, ErrInvalidPurpose
	}
	channel, target, err := resolveTarget(in.Identifier)
	if err != nil {
		return nil, err
	}
	submitted := strings.TrimSpace(in.Code)
	if !s.wellFormed(submitted) {
		return nil, ErrCodeFormat
	}

	code, err := s.codes.Latest(ctx, channel, target, in.Purpose, domain.CodeStatusIssued)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.CodeChecked(string(channel), string(in.Purpose), "not_found")
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("lookup verification code: %w", err)
	}

	now := s.now()
	if code.IsExpired(now) {
		s.metrics.CodeChecked(string(channel), string(in.Purpose), "expired")
		return nil, ErrCodeExpired
	}
	if err := s.check(ctx, code, submitted, now); err != nil {
		return nil, err
	}

	if err := s.codes.Transition(ctx, channel, code.ID, []domain.CodeStatus{domain.CodeStatusIssued}, domain.CodeStatusFirstVerified); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("mark code verified: %w", err)
	}
	code.Status = domain.CodeStatusFirstVerified

	s.metrics.CodeChecked(string(channel), string(in.Purpose), "verified")
	if s.events != nil {
		publishEvent(ctx, s.logger, domain.EventCodeVerified, func(ctx context.Context) error {
			return s.events.PublishCodeVerified(ctx, domain.CodeVerifiedEvent{
				EventID:      uuid.NewString(),
				CodeID:       code.ID,
				Channel:      channel,
				Purpose:      in.Purpose,
				MaskedTarget: logger.MaskTarget(target),
				VerifiedAt:   now,
			})
		})
	}

	return code, nil
}

// ResolveVerified returns a FirstVerified code for the target, verifying an
// Issued one first when the client skipped the separate verify step.
func (s *VerificationCodeService) ResolveVerified(ctx context.Context, in VerifyCodeInput) (*domain.VerificationCode, error) {
	channel, target, err := resolveTarget(in.Identifier)
	if err != nil {
		return nil, err
	}
	submitted := strings.TrimSpace(in.Code)
	if !s.wellFormed(submitted) {
		return nil, ErrCodeFormat
	}

	code, err := s.codes.Latest(ctx, channel, target, in.Purpose, domain.CodeStatusFirstVerified)
	switch {
	case err == nil:
		now := s.now()
		if code.IsExpired(now) {
			s.metrics.CodeChecked(string(channel), string(in.Purpose), "expired")
			return nil, ErrCodeExpired
		}
		if err := s.check(ctx, code, submitted, now); err != nil {
			return nil, err
		}
		return code, nil
	case errors.Is(err, repository.ErrNotFound):
		return s.VerifyCode(ctx, in)
	default:
		return nil, fmt.Errorf("lookup verified code: %w", err)
	}
}

func (s *VerificationCodeService) wellFormed(submitted string) bool {
	if len(submitted) != s.cfg.CodeLength {
		return false
	}
	for _, r := range submitted {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// check compares submitted against the row in any verifiable state. Every
// mismatch counts against max_verify_attempts and an exhausted row never
// matches again.
func (s *VerificationCodeService) check(ctx context.Context, code *domain.VerificationCode, submitted string, now time.Time) error {
	channel, purpose := string(code.Channel), string(code.Purpose)
	if code.VerifyCount >= s.cfg.MaxVerifyAttempts {
		s.metrics.CodeChecked(channel, purpose, "exhausted")
		return ErrCodeAttemptsExceeded
	}
	if security.MatchesHash(code.ID+":"+submitted, code.CodeHash) {
		return nil
	}

	count, err := s.codes.RecordAttempt(ctx, code.Channel, code.ID, now)
	if err != nil {
		return fmt.Errorf("record verify attempt: %w", err)
	}
	code.VerifyCount = count
	s.metrics.CodeChecked(channel, purpose, "mismatch")
	if count >= s.cfg.MaxVerifyAttempts {
		return ErrCodeAttemptsExceeded
	}
	return ErrCodeMismatch
}

// Get loads a code row.
func (s *VerificationCodeService) Get(ctx context.Context, channel domain.Channel, id string) (*domain.VerificationCode, error) {
	code, err := s.codes.GetByID(ctx, channel, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("load verification code: %w", err)
	}
	return code, nil
}

// SecondVerify moves a FirstVerified code to SecondVerified.
func (s *VerificationCodeService) SecondVerify(ctx context.Context, channel domain.Channel, id string) error {
	return s.transition(ctx, channel, id, []domain.CodeStatus{domain.CodeStatusFirstVerified}, domain.CodeStatusSecondVerified)
}

// Consume retires a code from any live state.
func (s *VerificationCodeService) Consume(ctx context.Context, channel domain.Channel, id string) error {
	return s.transition(ctx, channel, id, []domain.CodeStatus{
		domain.CodeStatusIssued,
		domain.CodeStatusFirstVerified,
		domain.CodeStatusSecondVerified,
	}, domain.CodeStatusConsumed)
}

func (s *VerificationCodeService) transition(ctx context.Context, channel domain.Channel, id string, from []domain.CodeStatus, to domain.CodeStatus) error {
	if err := s.codes.Transition(ctx, channel, id, from, to); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrCodeStateInvalid
		}
		return fmt.Errorf("transition code to %s: %w", to, err)
	}
	return nil
}
