package domain

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// IdentifierKind classifies a free-form contact identifier.
type IdentifierKind string

const (
	IdentifierUnknown IdentifierKind = ""
	IdentifierPhone   IdentifierKind = "phone"
	IdentifierEmail   IdentifierKind = "email"
)

var (
	mainlandMobile = regexp.MustCompile(`^1[3-9]\d{9}$`)
	sixDigitCode   = regexp.MustCompile(`^\d{6}$`)
	validate       = validator.New()
)

// IsMainlandMobile reports whether s is an 11-digit mainland China mobile number.
func IsMainlandMobile(s string) bool {
	return mainlandMobile.MatchString(strings.TrimSpace(s))
}

// IsEmail reports whether s is a syntactically valid email address.
func IsEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return validate.Var(s, "required,email") == nil
}

// IsSixDigitCode reports whether s has the shape of an issued verification code.
func IsSixDigitCode(s string) bool {
	return sixDigitCode.MatchString(s)
}

// ClassifyIdentifier sniffs whether the identifier is a phone or an email and
// returns it normalized. Emails are lowercased.
func ClassifyIdentifier(raw string) (IdentifierKind, string) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return IdentifierUnknown, ""
	case IsMainlandMobile(trimmed):
		return IdentifierPhone, trimmed
	case IsEmail(trimmed):
		return IdentifierEmail, strings.ToLower(trimmed)
	default:
		return IdentifierUnknown, trimmed
	}
}

// ChannelFor maps an identifier kind onto its delivery channel.
func ChannelFor(kind IdentifierKind) (Channel, bool) {
	switch kind {
	case IdentifierPhone:
		return ChannelSMS, true
	case IdentifierEmail:
		return ChannelEmail, true
	}
	return "", false
}
