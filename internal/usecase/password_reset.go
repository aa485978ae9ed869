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
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/telemetry"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

const defaultSessionTTL = 10 * time.Minute

// PasswordResetSendInput requests a reset code for an authenticated user.
type PasswordResetSendInput struct {
	UserID       string
	Method       string
	ClientIP     string
	UserAgent    string
	CaptchaToken string
}

// PasswordResetVerifyInput submits the reset code.
type PasswordResetVerifyInput struct {
	UserID   string
	Method   string
	Code     string
	ClientIP string
}

// PasswordResetTicket authorizes a single ResetPassword call.
type PasswordResetTicket struct {
	Token     string
	ExpiresAt time.Time
}

// ResetPasswordInput carries the ticket and the new password.
type ResetPasswordInput struct {
	Token       string
	NewPassword string
	ClientIP    string
}

// PasswordResetService drives the three-step password reset flow.
type PasswordResetService struct {
	users    port.UserRepository
	codes    *VerificationCodeService
	sessions port.VerificationSessionStore
	signer   port.SessionTokenSigner
	uow      port.UnitOfWork
	hasher   port.PasswordHasher
	policy   port.PasswordPolicyValidator
	events   port.EventPublisher
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time
}

// PasswordResetDeps groups the collaborators of PasswordResetService.
type PasswordResetDeps struct {
	Users    port.UserRepository
	Codes    *VerificationCodeService
	Sessions port.VerificationSessionStore
	Signer   port.SessionTokenSigner
	UoW      port.UnitOfWork
	Hasher   port.PasswordHasher
	Policy   port.PasswordPolicyValidator
	Events   port.EventPublisher
	Metrics  *telemetry.Metrics
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(cfg config.VerificationSettings, deps PasswordResetDeps, logger *zap.Logger) *PasswordResetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	return &PasswordResetService{
		users:    deps.Users,
		codes:    deps.Codes,
		sessions: deps.Sessions,
		signer:   deps.Signer,
		uow:      deps.UoW,
		hasher:   deps.Hasher,
		policy:   deps.Policy,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *PasswordResetService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// ParseMethod maps a reset method name onto its channel.
func ParseMethod(method string) (domain.Channel, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "phone", "sms":
		return domain.ChannelSMS, nil
	case "email":
		return domain.ChannelEmail, nil
	}
	return "", ErrInvalidChannel
}

func loadActiveUser(ctx context.Context, users port.UserRepository, id string) (*domain.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrUnauthenticated
	}
	user, err := users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive() {
		return nil, ErrUserInactive
	}
	return user, nil
}

func passwordContext(user *domain.User) domain.PasswordContext {
	return domain.PasswordContext{
		Username: user.Username,
		Email:    user.Contact(domain.ChannelEmail),
		Phone:    user.Contact(domain.ChannelSMS),
	}
}

// SendPasswordResetCode sends a reset code to the user's bound phone or email.
func (s *PasswordResetService) SendPasswordResetCode(ctx context.Context, in PasswordResetSendInput) (*SendCodeResult, error) {
	channel, err := ParseMethod(in.Method)
	if err != nil {
		return nil, err
	}
	user, err := loadActiveUser(ctx, s.users, in.UserID)
	if err != nil {
		return nil, err
	}
	target := user.Contact(channel)
	if target == "" {
		return nil, ErrContactMissing
	}

	return s.codes.SendCode(ctx, SendCodeInput{
		Identifier:   target,
		Purpose:      domain.PurposePasswordReset,
		ClientIP:     in.ClientIP,
		UserAgent:    in.UserAgent,
		UserID:       user.ID,
		CaptchaToken: in.CaptchaToken,
	})
}

// VerifyPasswordResetCode checks the reset code and opens a verification
// session. The returned token is required by ResetPassword.
func (s *PasswordResetService) VerifyPasswordResetCode(ctx context.Context, in PasswordResetVerifyInput) (*PasswordResetTicket, error) {
	channel, err := ParseMethod(in.Method)
	if err != nil {
		return nil, err
	}
	user, err := loadActiveUser(ctx, s.users, in.UserID)
	if err != nil {
		return nil, err
	}
	target := user.Contact(channel)
	if target == "" {
		return nil, ErrContactMissing
	}

	code, err := s.codes.VerifyCode(ctx, VerifyCodeInput{
		Identifier: target,
		Purpose:    domain.PurposePasswordReset,
		Code:       in.Code,
	})
	if err != nil {
		return nil, err
	}
	if code.UserID != nil && *code.UserID != user.ID {
		return nil, ErrCodeNotFound
	}

	now := s.now()
	session := domain.VerificationSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Purpose:   domain.PurposePasswordReset,
		Step:      domain.StepCodeVerified,
		Channel:   channel,
		Target:    code.Target,
		CodeID:    code.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save reset session: %w", err)
	}
	token, err := s.signer.Sign(session)
	if err != nil {
		return nil, err
	}

	s.logger.Info("password reset code verified",
		zap.String("request_id", logger.RequestIDFromContext(ctx)),
		zap.String("user_id", user.ID),
		zap.String("method", string(channel)),
		zap.String("target", logger.MaskTarget(target)),
	)

	return &PasswordResetTicket{Token: token, ExpiresAt: session.ExpiresAt}, nil
}

func loadSession(ctx context.Context, signer port.SessionTokenSigner, sessions port.VerificationSessionStore, now time.Time, token string, purpose domain.Purpose) (*domain.VerificationSession, error) {
	id, step, err := signer.Parse(token, purpose)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	session, err := sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("load verification session: %w", err)
	}
	// A token only opens the step it was signed for; tokens from earlier
	// steps of the same session are stale.
	if session.Purpose != purpose || session.Step != step || session.IsExpired(now) {
		return nil, ErrSessionInvalid
	}
	return session, nil
}

// ResetPassword sets a new password for the session's user. The password
// update, the revocation of every token and the consumption of the code
// commit together.
func (s *PasswordResetService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	session, err := loadSession(ctx, s.signer, s.sessions, s.now(), in.Token, domain.PurposePasswordReset)
	if err != nil {
		return err
	}
	if session.Step != domain.StepCodeVerified {
		return ErrSessionInvalid
	}

	user, err := loadActiveUser(ctx, s.users, session.UserID)
	if err != nil {
		return err
	}

	now := s.now()
	code, err := s.codes.Get(ctx, session.Channel, session.CodeID)
	if err != nil {
		return err
	}
	if code.Status != domain.CodeStatusFirstVerified || code.Purpose != domain.PurposePasswordReset || code.Target != session.Target {
		return ErrCodeStateInvalid
	}
	if code.UserID != nil && *code.UserID != user.ID {
		return ErrCodeStateInvalid
	}
	if code.IsExpired(now) {
		return ErrCodeExpired
	}

	if err := s.policy.Validate(in.NewPassword, passwordContext(user)); err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordInvalid, err)
	}
	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var revoked int64
	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		if err := repos.Users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		n, err := repos.Tokens.RevokeAllForUser(ctx, user.ID, now)
		if err != nil {
			return fmt.Errorf("revoke tokens: %w", err)
		}
		revoked = n
		if err := repos.Codes.Transition(ctx, session.Channel, code.ID, []domain.CodeStatus{domain.CodeStatusFirstVerified}, domain.CodeStatusConsumed); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrCodeStateInvalid
			}
			return fmt.Errorf("consume reset code: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		s.logger.Warn("failed to delete reset session", zap.String("session_id", session.ID), zap.Error(err))
	}

	s.metrics.PasswordReset()
	s.logger.Info("password reset",
		zap.String("request_id", logger.RequestIDFromContext(ctx)),
		zap.String("user_id", user.ID),
		zap.String("method", string(session.Channel)),
		zap.Int64("tokens_revoked", revoked),
		zap.String("ip", logger.MaskIP(in.ClientIP)),
	)

	if s.events != nil {
		publishEvent(ctx, s.logger, domain.EventPasswordReset, func(ctx context.Context) error {
			return s.events.PublishPasswordReset(ctx, domain.PasswordResetEvent{
				EventID:       uuid.NewString(),
				UserID:        user.ID,
				Method:        session.Channel,
				TokensRevoked: revoked,
				ResetAt:       now,
				ClientIP:      in.ClientIP,
			})
		})
	}
	return nil
}
