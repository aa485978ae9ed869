package domain

import "time"

// VerificationStep tracks progress through a multi-step verification flow.
type VerificationStep string

const (
	StepCodeVerified    VerificationStep = "code_verified"
	StepAwaitCurrent    VerificationStep = "await_current"
	StepCurrentVerified VerificationStep = "current_verified"
	StepNewCodeSent     VerificationStep = "new_code_sent"
)

// VerificationSession is a short-lived server-side record of a verification
// flow in progress. Clients hold a signed token naming the session ID.
type VerificationSession struct {
	ID        string
	UserID    string
	Purpose   Purpose
	Step      VerificationStep
	Channel   Channel
	Target    string
	CodeID    string
	NewTarget string
	NewCodeID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the session has lapsed at now.
func (s VerificationSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
