package port

import "github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"

// PasswordPolicyValidator enforces password strength requirements.
type PasswordPolicyValidator interface {
	Validate(password string, ctx domain.PasswordContext) error
}

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// SessionTokenSigner binds a verification session id and its current step
// into a signed, expiring token handed to clients between flow steps.
type SessionTokenSigner interface {
	Sign(session domain.VerificationSession) (string, error)
	Parse(token string, purpose domain.Purpose) (sessionID string, step domain.VerificationStep, err error)
}
