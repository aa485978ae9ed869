package domain

import "time"

// Channel identifies how a verification code reaches its target.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Valid reports whether the channel is one the portal can deliver on.
func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

// Purpose names the action a verification code or captcha challenge guards.
type Purpose string

const (
	PurposeRegister      Purpose = "register"
	PurposeLogin         Purpose = "login"
	PurposePasswordReset Purpose = "password_reset"
	PurposeChangePhone   Purpose = "change_phone"
	PurposeChangeEmail   Purpose = "change_email"
	PurposeBind          Purpose = "bind"
)

// Valid reports whether the purpose is known.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeRegister, PurposeLogin, PurposePasswordReset, PurposeChangePhone, PurposeChangeEmail, PurposeBind:
		return true
	}
	return false
}

// CodeStatus mirrors the integer status column of the verification code tables.
type CodeStatus int

const (
	CodeStatusConsumed       CodeStatus = 0
	CodeStatusIssued         CodeStatus = 1
	CodeStatusFirstVerified  CodeStatus = 3
	CodeStatusSecondVerified CodeStatus = 4
)

func (s CodeStatus) String() string {
	switch s {
	case CodeStatusConsumed:
		return "consumed"
	case CodeStatusIssued:
		return "issued"
	case CodeStatusFirstVerified:
		return "first_verified"
	case CodeStatusSecondVerified:
		return "second_verified"
	default:
		return "unknown"
	}
}

// VerificationCode is a persisted SMS or email code. Rows are never deleted;
// expiry is evaluated lazily against ExpiresAt.
type VerificationCode struct {
	ID           string
	Channel      Channel
	Target       string
	CodeHash     string
	Purpose      Purpose
	TemplateID   string
	Status       CodeStatus
	ClientIP     string
	UserID       *string
	VerifyCount  int
	LastVerifyAt *time.Time
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// IsExpired reports whether the code's validity window has closed at now.
func (c VerificationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// CodeMessage is handed to the delivery layer once a code has been persisted.
type CodeMessage struct {
	Channel    Channel
	Target     string
	Code       string
	Purpose    Purpose
	TemplateID string
	ExpiresIn  time.Duration
}
