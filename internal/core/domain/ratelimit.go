package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// LimitType selects which request attributes a rate limit rule groups sends by.
type LimitType string

const (
	// LimitPerTarget groups by phone number or email address.
	LimitPerTarget         LimitType = "per_phone"
	LimitPerIP             LimitType = "per_ip"
	LimitPerTargetTemplate LimitType = "per_phone_template"
	LimitPerIPTemplate     LimitType = "per_ip_template"
	LimitGlobal            LimitType = "global"
)

// Valid reports whether the limit type is supported.
func (t LimitType) Valid() bool {
	switch t {
	case LimitPerTarget, LimitPerIP, LimitPerTargetTemplate, LimitPerIPTemplate, LimitGlobal:
		return true
	}
	return false
}

// RateLimitRule is an administrator-configured cap on sends within a sliding window.
// An empty Purpose or TemplateID matches every value.
type RateLimitRule struct {
	ID         string
	Name       string
	Purpose    Purpose
	TemplateID string
	LimitType  LimitType
	Window     time.Duration
	MaxCount   int
	Enabled    bool
	Priority   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Applies reports whether the rule governs the given send request.
func (r RateLimitRule) Applies(req SendRequest) bool {
	if !r.Enabled || r.MaxCount <= 0 || r.Window <= 0 {
		return false
	}
	if r.Purpose != "" && r.Purpose != req.Purpose {
		return false
	}
	if r.TemplateID != "" && r.TemplateID != req.TemplateID {
		return false
	}
	return true
}

// LedgerKey builds the counter key for the request under this rule. The second
// return value is false when the request lacks the attribute the rule groups by.
func (r RateLimitRule) LedgerKey(req SendRequest) (string, bool) {
	target := strings.ToLower(strings.TrimSpace(req.Target))
	ip := strings.TrimSpace(req.ClientIP)
	tpl := strings.TrimSpace(req.TemplateID)

	switch r.LimitType {
	case LimitPerTarget:
		if target == "" {
			return "", false
		}
		return fmt.Sprintf("%s:target:%s", r.ID, target), true
	case LimitPerIP:
		if ip == "" {
			return "", false
		}
		return fmt.Sprintf("%s:ip:%s", r.ID, ip), true
	case LimitPerTargetTemplate:
		if target == "" {
			return "", false
		}
		return fmt.Sprintf("%s:target_tpl:%s:%s", r.ID, target, tpl), true
	case LimitPerIPTemplate:
		if ip == "" {
			return "", false
		}
		return fmt.Sprintf("%s:ip_tpl:%s:%s", r.ID, ip, tpl), true
	case LimitGlobal:
		return fmt.Sprintf("%s:global", r.ID), true
	default:
		return "", false
	}
}

// SendRequest describes a code send that is subject to rate limiting.
type SendRequest struct {
	Channel    Channel
	Target     string
	ClientIP   string
	TemplateID string
	Purpose    Purpose
}

// RateLimitDecision is the outcome of evaluating every applicable rule.
type RateLimitDecision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
	Rule       *RateLimitRule
}

// RetryAfterSeconds rounds the retry hint up to whole seconds.
func (d RateLimitDecision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}
