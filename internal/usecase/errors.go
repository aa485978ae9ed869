package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

var (
	// ErrInvalidIdentifier indicates the identifier is neither a mainland mobile number nor an email.
	ErrInvalidIdentifier = errors.New("invalid phone number or email")
	// ErrInvalidPurpose indicates an unknown verification purpose.
	ErrInvalidPurpose = errors.New("invalid verification purpose")
	// ErrInvalidChannel indicates an unsupported delivery channel or reset method.
	ErrInvalidChannel = errors.New("invalid verification channel")

	// ErrCaptchaRequired indicates the scene needs a captcha proof and none was supplied.
	ErrCaptchaRequired = errors.New("captcha verification required")
	// ErrCaptchaFailed indicates the supplied captcha proof was rejected.
	ErrCaptchaFailed = errors.New("captcha verification failed")
	// ErrCaptchaUnavailable indicates the requested captcha feature is not configured.
	ErrCaptchaUnavailable = errors.New("captcha unavailable")

	// ErrCodeNotFound indicates no usable code exists for the target and purpose.
	ErrCodeNotFound = errors.New("verification code not found")
	// ErrCodeExpired indicates the code's validity window has closed.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeFormat indicates the submitted code is not a numeric code of the issued length.
	ErrCodeFormat = errors.New("verification code malformed")
	// ErrCodeMismatch indicates the submitted code does not match.
	ErrCodeMismatch = errors.New("verification code mismatch")
	// ErrCodeAttemptsExceeded indicates the code has been guessed too many times.
	ErrCodeAttemptsExceeded = errors.New("verification code attempts exceeded")
	// ErrCodeStateInvalid indicates the code is not in the state the operation requires.
	ErrCodeStateInvalid = errors.New("verification code state invalid")
	// ErrDeliveryFailed indicates the SMS or email could not be dispatched.
	ErrDeliveryFailed = errors.New("verification code delivery failed")

	// ErrSessionInvalid indicates a verification session token is bad, expired or out of step.
	ErrSessionInvalid = errors.New("verification session invalid")

	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserInactive indicates the account is locked or disabled.
	ErrUserInactive = errors.New("account is not active")
	// ErrUsernameTaken indicates the requested username is in use.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrContactMissing indicates the user has no bound contact for the requested method.
	ErrContactMissing = errors.New("no contact bound for method")
	// ErrContactInUse indicates the phone or email is bound to another account.
	ErrContactInUse = errors.New("contact already bound")
	// ErrContactUnchanged indicates the new contact equals the current one.
	ErrContactUnchanged = errors.New("new contact equals current contact")

	// ErrPasswordInvalid wraps password policy violations.
	ErrPasswordInvalid = errors.New("password does not meet requirements")
	// ErrInvalidCredentials indicates a login with a wrong identifier or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a missing, expired or revoked access token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidRule indicates a rate limit rule or captcha config failed validation.
	ErrInvalidRule = errors.New("invalid policy definition")
	// ErrPolicyNotFound indicates the rule or config does not exist.
	ErrPolicyNotFound = errors.New("policy not found")
)

// RateLimitExceededError reports which rule denied a send and when to retry.
type RateLimitExceededError struct {
	Rule       string
	LimitType  domain.LimitType
	RetryAfter time.Duration
	Reason     string
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded (rule=%s type=%s retry_after=%ds)", e.Rule, e.LimitType, e.RetryAfterSeconds())
}

// RetryAfterSeconds rounds the retry hint up to whole seconds, never below one.
func (e *RateLimitExceededError) RetryAfterSeconds() int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func rateLimitError(decision domain.RateLimitDecision) *RateLimitExceededError {
	err := &RateLimitExceededError{RetryAfter: decision.RetryAfter, Reason: decision.Reason}
	if decision.Rule != nil {
		err.Rule = decision.Rule.ID
		err.LimitType = decision.Rule.LimitType
	}
	return err
}

// publishEvent runs fn and logs a failure. Event delivery never fails the caller.
func publishEvent(ctx context.Context, logger *zap.Logger, eventType string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		logger.Warn("failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}
