package domain

import "time"

// UserStatus enumerates possible account states.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusLocked   UserStatus = "locked"
	UserStatusDisabled UserStatus = "disabled"
)

// RoleAdmin grants access to the policy back-office.
const RoleAdmin = "admin"

// User mirrors the persisted representation in the users table. Either
// Phone or Email is bound at registration; the other may be bound later.
type User struct {
	ID                 string
	Username           string
	Email              *string
	Phone              *string
	PasswordHash       string
	Status             UserStatus
	Roles              []string
	RegisteredAt       time.Time
	LastLogin          *time.Time
	LastPasswordChange *time.Time
}

// IsActive reports whether the user may authenticate.
func (u User) IsActive() bool {
	return u.Status == UserStatusActive
}

// HasRole reports whether the role is granted to the user.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Contact returns the bound contact for the channel, or "" when none.
func (u User) Contact(ch Channel) string {
	switch ch {
	case ChannelSMS:
		if u.Phone != nil {
			return *u.Phone
		}
	case ChannelEmail:
		if u.Email != nil {
			return *u.Email
		}
	}
	return ""
}

// PasswordContext supplies user attributes the password strength check
// must not be derived from.
type PasswordContext struct {
	Username string
	Email    string
	Phone    string
}

// TokenType distinguishes the credentials issued at login.
type TokenType string

const (
	TokenTypeLogin   TokenType = "login"
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// AuthToken is an opaque credential persisted as a SHA-256 hash.
type AuthToken struct {
	ID        string
	UserID    string
	Type      TokenType
	TokenHash string
	ClientIP  string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// IsActive reports whether the token is neither revoked nor expired at now.
func (t AuthToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// TokenPair is returned to clients on login and registration.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
