package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

// ErrInvalidSessionToken indicates a verification session token failed parsing or validation.
var ErrInvalidSessionToken = errors.New("security: invalid verification session token")

type sessionClaims struct {
	Purpose string `json:"pur"`
	Step    string `json:"stp,omitempty"`
	jwt.RegisteredClaims
}

// SessionTokenSigner issues HS256 tokens naming a verification session.
type SessionTokenSigner struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSessionTokenSigner returns a signer using the shared secret.
func NewSessionTokenSigner(secret, issuer string) (*SessionTokenSigner, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("session token secret must be at least 16 bytes")
	}
	return &SessionTokenSigner{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// WithClock overrides the clock used for issued-at and validation.
func (s *SessionTokenSigner) WithClock(clock func() time.Time) *SessionTokenSigner {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Sign returns a token whose subject is the session id and whose expiry
// matches the session.
func (s *SessionTokenSigner) Sign(session domain.VerificationSession) (string, error) {
	if session.ID == "" {
		return "", fmt.Errorf("session id is required")
	}
	claims := sessionClaims{
		Purpose: string(session.Purpose),
		Step:    string(session.Step),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   session.ID,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse validates the token and returns the session id it names together
// with the step it was signed for. Tokens issued for a different purpose are
// rejected.
func (s *SessionTokenSigner) Parse(token string, purpose domain.Purpose) (string, domain.VerificationStep, error) {
	if token == "" {
		return "", "", ErrInvalidSessionToken
	}

	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return "", "", ErrInvalidSessionToken
	}
	if claims.Subject == "" || domain.Purpose(claims.Purpose) != purpose {
		return "", "", ErrInvalidSessionToken
	}
	return claims.Subject, domain.VerificationStep(claims.Step), nil
}
