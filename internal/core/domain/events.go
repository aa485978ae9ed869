package domain

import "time"

// Event types published on the portal topics.
const (
	EventCodeIssued      = "portal.code.issued"
	EventCodeVerified    = "portal.code.verified"
	EventCaptchaVerified = "portal.captcha.verified"
	EventPasswordReset   = "portal.password.reset"
	EventContactChanged  = "portal.contact.changed"
	EventUserRegistered  = "portal.user.registered"
)

// CodeIssuedEvent is published after a code has been dispatched.
type CodeIssuedEvent struct {
	EventID      string
	CodeID       string
	Channel      Channel
	Purpose      Purpose
	MaskedTarget string
	ClientIP     string
	Delivered    bool
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// CodeVerifiedEvent is published when a code reaches FirstVerified.
type CodeVerifiedEvent struct {
	EventID      string
	CodeID       string
	Channel      Channel
	Purpose      Purpose
	MaskedTarget string
	VerifiedAt   time.Time
}

// CaptchaVerifiedEvent is published for every provider verification.
type CaptchaVerifiedEvent struct {
	EventID    string
	LogID      string
	Scene      string
	Provider   CaptchaProvider
	Success    bool
	ClientIP   string
	VerifiedAt time.Time
}

// PasswordResetEvent is published after a password reset commits.
type PasswordResetEvent struct {
	EventID       string
	UserID        string
	Method        Channel
	TokensRevoked int64
	ResetAt       time.Time
	ClientIP      string
}

// ContactChangedEvent is published after a phone or email change commits.
type ContactChangedEvent struct {
	EventID   string
	UserID    string
	Channel   Channel
	OldMasked string
	NewMasked string
	ChangedAt time.Time
}

// UserRegisteredEvent is published after a new account is created.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Username     string
	Channel      Channel
	MaskedTarget string
	RegisteredAt time.Time
}
