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
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

// ContactChangeStartInput opens a phone or email change for a user.
type ContactChangeStartInput struct {
	UserID       string
	Method       string
	ClientIP     string
	UserAgent    string
	CaptchaToken string
}

// ContactChangeStepInput advances an open change with a code.
type ContactChangeStepInput struct {
	UserID string
	Method string
	Token  string
	Code   string
}

// ContactChangeSendInput names the new contact to verify.
type ContactChangeSendInput struct {
	UserID        string
	Method        string
	Token         string
	NewIdentifier string
	ClientIP      string
	UserAgent     string
	CaptchaToken  string
}

// ContactChangeState is returned after each step. Token replaces the one the
// client held before the step.
type ContactChangeState struct {
	Token     string
	Step      domain.VerificationStep
	ExpiresAt time.Time
	Code      *SendCodeResult
}

// ContactChangeService changes a user's bound phone or email. The current
// contact is proven first, then the new one.
type ContactChangeService struct {
	users    port.UserRepository
	codes    *VerificationCodeService
	sessions port.VerificationSessionStore
	signer   port.SessionTokenSigner
	uow      port.UnitOfWork
	events   port.EventPublisher
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time
}

// NewContactChangeService constructs a ContactChangeService.
func NewContactChangeService(cfg config.VerificationSettings, users port.UserRepository, codes *VerificationCodeService, sessions port.VerificationSessionStore, signer port.SessionTokenSigner, uow port.UnitOfWork, events port.EventPublisher, logger *zap.Logger) *ContactChangeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &ContactChangeService{
		users:    users,
		codes:    codes,
		sessions: sessions,
		signer:   signer,
		uow:      uow,
		events:   events,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *ContactChangeService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

func changePurpose(channel domain.Channel) domain.Purpose {
	if channel == domain.ChannelEmail {
		return domain.PurposeChangeEmail
	}
	return domain.PurposeChangePhone
}

// StartContactChange sends a code to the current contact. A user without a
// current contact for the method goes straight to the new-contact step.
func (s *ContactChangeService) StartContactChange(ctx context.Context, in ContactChangeStartInput) (*ContactChangeState, error) {
	channel, err := ParseMethod(in.Method)
	if err != nil {
		return nil, err
	}
	user, err := loadActiveUser(ctx, s.users, in.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := domain.VerificationSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Purpose:   changePurpose(channel),
		Step:      domain.StepCurrentVerified,
		Channel:   channel,
		Target:    user.Contact(channel),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	var sent *SendCodeResult
	if session.Target != "" {
		sent, err = s.codes.SendCode(ctx, SendCodeInput{
			Identifier:   session.Target,
			Purpose:      session.Purpose,
			ClientIP:     in.ClientIP,
			UserAgent:    in.UserAgent,
			UserID:       user.ID,
			CaptchaToken: in.CaptchaToken,
		})
		if err != nil {
			return nil, err
		}
		session.Step = domain.StepAwaitCurrent
		session.CodeID = sent.CodeID
	}

	return s.persist(ctx, session, sent)
}

// VerifyCurrentContact checks the code sent to the current contact.
func (s *ContactChangeService) VerifyCurrentContact(ctx context.Context, in ContactChangeStepInput) (*ContactChangeState, error) {
	session, err := s.openSession(ctx, in.UserID, in.Method, in.Token, domain.StepAwaitCurrent)
	if err != nil {
		return nil, err
	}

	code, err := s.codes.VerifyCode(ctx, VerifyCodeInput{
		Identifier: session.Target,
		Purpose:    session.Purpose,
		Code:       in.Code,
	})
	if err != nil {
		return nil, err
	}

	session.CodeID = code.ID
	session.Step = domain.StepCurrentVerified
	return s.persist(ctx, *session, nil)
}

// SendNewContactCode sends a code to the new contact. It may be repeated to
// resend or pick a different contact before confirming.
func (s *ContactChangeService) SendNewContactCode(ctx context.Context, in ContactChangeSendInput) (*ContactChangeState, error) {
	session, err := s.openSession(ctx, in.UserID, in.Method, in.Token, domain.StepCurrentVerified, domain.StepNewCodeSent)
	if err != nil {
		return nil, err
	}

	channel, target, err := resolveTarget(in.NewIdentifier)
	if err != nil {
		return nil, err
	}
	if channel != session.Channel {
		return nil, ErrInvalidIdentifier
	}
	if strings.EqualFold(target, session.Target) {
		return nil, ErrContactUnchanged
	}
	if err := s.ensureUnused(ctx, session.UserID, channel, target); err != nil {
		return nil, err
	}

	sent, err := s.codes.SendCode(ctx, SendCodeInput{
		Identifier:   target,
		Purpose:      session.Purpose,
		ClientIP:     in.ClientIP,
		UserAgent:    in.UserAgent,
		UserID:       session.UserID,
		CaptchaToken: in.CaptchaToken,
	})
	if err != nil {
		return nil, err
	}

	session.NewTarget = target
	session.NewCodeID = sent.CodeID
	session.Step = domain.StepNewCodeSent
	return s.persist(ctx, *session, sent)
}

// ConfirmNewContact checks the new contact's code and binds it. The contact
// update and the consumption of both codes commit together.
func (s *ContactChangeService) ConfirmNewContact(ctx context.Context, in ContactChangeStepInput) error {
	session, err := s.openSession(ctx, in.UserID, in.Method, in.Token, domain.StepNewCodeSent)
	if err != nil {
		return err
	}
	if err := s.ensureUnused(ctx, session.UserID, session.Channel, session.NewTarget); err != nil {
		return err
	}

	code, err := s.codes.VerifyCode(ctx, VerifyCodeInput{
		Identifier: session.NewTarget,
		Purpose:    session.Purpose,
		Code:       in.Code,
	})
	if err != nil {
		return err
	}

	verified := []domain.CodeStatus{domain.CodeStatusFirstVerified}
	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		if err := repos.Users.UpdateContact(ctx, session.UserID, session.Channel, session.NewTarget); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrContactInUse
			}
			return fmt.Errorf("update contact: %w", err)
		}
		if err := repos.Codes.Transition(ctx, session.Channel, code.ID, verified, domain.CodeStatusConsumed); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrCodeStateInvalid
			}
			return fmt.Errorf("consume new contact code: %w", err)
		}
		if session.CodeID != "" {
			if err := repos.Codes.Transition(ctx, session.Channel, session.CodeID, verified, domain.CodeStatusConsumed); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return ErrCodeStateInvalid
				}
				return fmt.Errorf("consume current contact code: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		s.logger.Warn("failed to delete contact change session", zap.String("session_id", session.ID), zap.Error(err))
	}

	now := s.now()
	s.logger.Info("contact changed",
		zap.String("request_id", logger.RequestIDFromContext(ctx)),
		zap.String("user_id", session.UserID),
		zap.String("channel", string(session.Channel)),
		zap.String("new", logger.MaskTarget(session.NewTarget)),
	)
	if s.events != nil {
		publishEvent(ctx, s.logger, domain.EventContactChanged, func(ctx context.Context) error {
			return s.events.PublishContactChanged(ctx, domain.ContactChangedEvent{
				EventID:   uuid.NewString(),
				UserID:    session.UserID,
				Channel:   session.Channel,
				OldMasked: logger.MaskTarget(session.Target),
				NewMasked: logger.MaskTarget(session.NewTarget),
				ChangedAt: now,
			})
		})
	}
	return nil
}

func (s *ContactChangeService) openSession(ctx context.Context, userID, method, token string, steps ...domain.VerificationStep) (*domain.VerificationSession, error) {
	channel, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	session, err := loadSession(ctx, s.signer, s.sessions, s.now(), token, changePurpose(channel))
	if err != nil {
		return nil, err
	}
	if session.UserID != userID || session.Channel != channel {
		return nil, ErrSessionInvalid
	}
	for _, step := range steps {
		if session.Step == step {
			return session, nil
		}
	}
	return nil, ErrSessionInvalid
}

func (s *ContactChangeService) ensureUnused(ctx context.Context, userID string, channel domain.Channel, target string) error {
	var (
		owner *domain.User
		err   error
	)
	if channel == domain.ChannelEmail {
		owner, err = s.users.GetByEmail(ctx, target)
	} else {
		owner, err = s.users.GetByPhone(ctx, target)
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("lookup contact owner: %w", err)
	case owner.ID != userID:
		return ErrContactInUse
	default:
		return ErrContactUnchanged
	}
}

func (s *ContactChangeService) persist(ctx context.Context, session domain.VerificationSession, sent *SendCodeResult) (*ContactChangeState, error) {
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save contact change session: %w", err)
	}
	token, err := s.signer.Sign(session)
	if err != nil {
		return nil, err
	}
	return &ContactChangeState{
		Token:     token,
		Step:      session.Step,
		ExpiresAt: session.ExpiresAt,
		Code:      sent,
	}, nil
}
