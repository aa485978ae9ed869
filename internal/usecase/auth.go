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
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

const (
	defaultAccessTokenTTL  = 2 * time.Hour
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	tokenByteLength        = 32

	sceneRegister = "register"
	sceneLogin    = "login"
)

// RegisterInput creates an account bound to a verified phone or email.
type RegisterInput struct {
	Username     string
	Identifier   string
	Code         string
	Password     string
	CaptchaToken string
	ClientIP     string
	UserAgent    string
}

// LoginInput authenticates by phone, email or username.
type LoginInput struct {
	Identifier   string
	Password     string
	CaptchaToken string
	ClientIP     string
	UserAgent    string
}

// AuthResult is returned by Register, Login and Refresh.
type AuthResult struct {
	User   *domain.User
	Tokens domain.TokenPair
}

// AuthService registers users and manages their opaque tokens.
type AuthService struct {
	users   port.UserRepository
	tokens  port.AuthTokenRepository
	codes   *VerificationCodeService
	captcha *CaptchaService
	uow     port.UnitOfWork
	hasher  port.PasswordHasher
	policy  port.PasswordPolicyValidator
	events  port.EventPublisher
	logger  *zap.Logger
	cfg     config.AuthSettings
	now     func() time.Time
}

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Users   port.UserRepository
	Tokens  port.AuthTokenRepository
	Codes   *VerificationCodeService
	Captcha *CaptchaService
	UoW     port.UnitOfWork
	Hasher  port.PasswordHasher
	Policy  port.PasswordPolicyValidator
	Events  port.EventPublisher
}

// NewAuthService constructs an AuthService.
func NewAuthService(cfg config.AuthSettings, deps AuthDeps, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = defaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = defaultRefreshTokenTTL
	}
	return &AuthService{
		users:   deps.Users,
		tokens:  deps.Tokens,
		codes:   deps.Codes,
		captcha: deps.Captcha,
		uow:     deps.UoW,
		hasher:  deps.Hasher,
		policy:  deps.Policy,
		events:  deps.Events,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Register creates a user after checking the registration code. The code is
// moved to SecondVerified in the same transaction that inserts the user.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	channel, target, err := resolveTarget(in.Identifier)
	if err != nil {
		return nil, err
	}
	if err := s.captcha.RequireProof(ctx, sceneRegister, in.CaptchaToken, target, in.ClientIP, in.UserAgent); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		suffix, err := security.RandomHex(4)
		if err != nil {
			return nil, err
		}
		username = "user_" + suffix
	}
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup username: %w", err)
	}
	if err := s.ensureContactFree(ctx, channel, target); err != nil {
		return nil, err
	}

	pwCtx := domain.PasswordContext{Username: username}
	if channel == domain.ChannelEmail {
		pwCtx.Email = target
	} else {
		pwCtx.Phone = target
	}
	if err := s.policy.Validate(in.Password, pwCtx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPasswordInvalid, err)
	}

	code, err := s.codes.ResolveVerified(ctx, VerifyCodeInput{
		Identifier: target,
		Purpose:    domain.PurposeRegister,
		Code:       in.Code,
	})
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
		Roles:        []string{},
		RegisteredAt: now,
	}
	if channel == domain.ChannelEmail {
		user.Email = &target
	} else {
		user.Phone = &target
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		if err := repos.Users.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrContactInUse
			}
			return fmt.Errorf("create user: %w", err)
		}
		if err := repos.Codes.Transition(ctx, channel, code.ID, []domain.CodeStatus{domain.CodeStatusFirstVerified}, domain.CodeStatusSecondVerified); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrCodeStateInvalid
			}
			return fmt.Errorf("redeem registration code: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(ctx, user.ID, in.ClientIP, in.UserAgent)
	if err != nil {
		return nil, err
	}

	masked := logger.MaskTarget(target)
	s.logger.Info("user registered",
		zap.String("request_id", logger.RequestIDFromContext(ctx)),
		zap.String("user_id", user.ID),
		zap.String("channel", string(channel)),
		zap.String("target", masked),
	)
	if s.events != nil {
		publishEvent(ctx, s.logger, domain.EventUserRegistered, func(ctx context.Context) error {
			return s.events.PublishUserRegistered(ctx, domain.UserRegisteredEvent{
				EventID:      uuid.NewString(),
				UserID:       user.ID,
				Username:     user.Username,
				Channel:      channel,
				MaskedTarget: masked,
				RegisteredAt: now,
			})
		})
	}

	return &AuthResult{User: &user, Tokens: tokens}, nil
}

func (s *AuthService) ensureContactFree(ctx context.Context, channel domain.Channel, target string) error {
	var err error
	if channel == domain.ChannelEmail {
		_, err = s.users.GetByEmail(ctx, target)
	} else {
		_, err = s.users.GetByPhone(ctx, target)
	}
	switch {
	case err == nil:
		return ErrContactInUse
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("lookup contact: %w", err)
	}
}

func (s *AuthService) lookupLogin(ctx context.Context, identifier string) (*domain.User, string, error) {
	kind, normalized := domain.ClassifyIdentifier(identifier)
	var (
		user *domain.User
		err  error
	)
	switch kind {
	case domain.IdentifierPhone:
		user, err = s.users.GetByPhone(ctx, normalized)
	case domain.IdentifierEmail:
		user, err = s.users.GetByEmail(ctx, normalized)
	default:
		if normalized == "" {
			return nil, "", ErrInvalidCredentials
		}
		user, err = s.users.GetByUsername(ctx, normalized)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}

	// Proofs are bound to a phone or email, never to a username.
	proofID := normalized
	if kind == domain.IdentifierUnknown {
		if proofID = user.Contact(domain.ChannelSMS); proofID == "" {
			proofID = user.Contact(domain.ChannelEmail)
		}
	}
	return user, proofID, nil
}

// Login checks the password and issues a fresh token pair.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	user, proofID, err := s.lookupLogin(ctx, in.Identifier)
	if err != nil {
		return nil, err
	}
	if err := s.captcha.RequireProof(ctx, sceneLogin, in.CaptchaToken, proofID, in.ClientIP, in.UserAgent); err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil || !ok {
		s.logger.Info("login rejected",
			zap.String("request_id", logger.RequestIDFromContext(ctx)),
			zap.String("user_id", user.ID),
			zap.String("ip", logger.MaskIP(in.ClientIP)),
		)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive() {
		return nil, ErrUserInactive
	}

	tokens, err := s.issueTokens(ctx, user.ID, in.ClientIP, in.UserAgent)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	user.LastLogin = &now

	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Refresh exchanges an active refresh token for a new pair. The presented
// refresh token is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, clientIP, userAgent string) (*AuthResult, error) {
	token, err := s.activeToken(ctx, domain.TokenTypeRefresh, refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := loadActiveUser(ctx, s.users, token.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if err := s.tokens.Revoke(ctx, token.ID, s.now()); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}

	tokens, err := s.issueTokens(ctx, user.ID, clientIP, userAgent)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Authenticate resolves an access token to its active user.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	token, err := s.activeToken(ctx, domain.TokenTypeAccess, accessToken)
	if err != nil {
		return nil, err
	}
	user, err := loadActiveUser(ctx, s.users, token.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return user, nil
}

// Logout revokes the access token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	token, err := s.activeToken(ctx, domain.TokenTypeAccess, accessToken)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil
		}
		return err
	}
	if err := s.tokens.Revoke(ctx, token.ID, s.now()); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *AuthService) activeToken(ctx context.Context, tokenType domain.TokenType, raw string) (*domain.AuthToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrUnauthenticated
	}
	token, err := s.tokens.GetByHash(ctx, tokenType, security.HashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	if !token.IsActive(s.now()) {
		return nil, ErrUnauthenticated
	}
	return token, nil
}

func (s *AuthService) issueTokens(ctx context.Context, userID, clientIP, userAgent string) (domain.TokenPair, error) {
	now := s.now()
	access, err := s.storeToken(ctx, userID, domain.TokenTypeAccess, now.Add(s.cfg.AccessTokenTTL), clientIP, userAgent)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.storeToken(ctx, userID, domain.TokenTypeRefresh, now.Add(s.cfg.RefreshTokenTTL), clientIP, userAgent)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.cfg.AccessTokenTTL),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}, nil
}

func (s *AuthService) storeToken(ctx context.Context, userID string, tokenType domain.TokenType, expiresAt time.Time, clientIP, userAgent string) (string, error) {
	raw, err := security.GenerateSecureToken(tokenByteLength)
	if err != nil {
		return "", err
	}
	if err := s.tokens.Create(ctx, domain.AuthToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      tokenType,
		TokenHash: security.HashToken(raw),
		ClientIP:  clientIP,
		UserAgent: userAgent,
		CreatedAt: s.now(),
		ExpiresAt: expiresAt,
	}); err != nil {
		return "", fmt.Errorf("store %s token: %w", tokenType, err)
	}
	return raw, nil
}
