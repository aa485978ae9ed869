package domain

import (
	"strings"
	"time"
)

// CaptchaProvider names a human-verification backend.
type CaptchaProvider string

const (
	ProviderLocal     CaptchaProvider = "local"
	ProviderGeetest   CaptchaProvider = "geetest"
	ProviderTurnstile CaptchaProvider = "turnstile"
	ProviderRecaptcha CaptchaProvider = "recaptcha"
	ProviderHCaptcha  CaptchaProvider = "hcaptcha"
)

// Valid reports whether the provider is supported.
func (p CaptchaProvider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderGeetest, ProviderTurnstile, ProviderRecaptcha, ProviderHCaptcha:
		return true
	}
	return false
}

// CaptchaConfigStatus is the operational status of a captcha configuration.
type CaptchaConfigStatus int

const (
	CaptchaStatusInactive CaptchaConfigStatus = 0
	CaptchaStatusActive   CaptchaConfigStatus = 1
)

// Second verification log rows carry the original scene with this suffix.
const SecondVerifySceneSuffix = "_second_verify"

// CaptchaConfig binds a provider and its credentials to a set of scenes.
// For geetest AppID is the captcha_id and AppSecret the captcha_key.
type CaptchaConfig struct {
	ID        string
	Name      string
	Provider  CaptchaProvider
	AppID     string
	AppSecret string
	SiteKey   string
	SecretKey string
	Endpoint  string
	MinScore  float64
	Scenes    []string
	Enabled   bool
	Priority  int
	Status    CaptchaConfigStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the config may be selected for verification.
func (c CaptchaConfig) Active() bool {
	return c.Enabled && c.Status == CaptchaStatusActive
}

// ServesScene reports whether the scene is listed on the config.
func (c CaptchaConfig) ServesScene(scene string) bool {
	scene = strings.TrimSpace(scene)
	if scene == "" {
		return false
	}
	for _, s := range c.Scenes {
		if strings.EqualFold(strings.TrimSpace(s), scene) {
			return true
		}
	}
	return false
}

// Public strips secrets so the config can be rendered client side.
func (c CaptchaConfig) Public(scene string) CaptchaPublicConfig {
	pub := CaptchaPublicConfig{
		Enabled:  true,
		Scene:    scene,
		Provider: c.Provider,
		SiteKey:  c.SiteKey,
	}
	if c.Provider == ProviderGeetest {
		pub.CaptchaID = c.AppID
	}
	return pub
}

// CaptchaPublicConfig is the non-secret view returned to clients.
type CaptchaPublicConfig struct {
	Enabled   bool
	Scene     string
	Provider  CaptchaProvider
	CaptchaID string
	SiteKey   string
}

// CaptchaPayload carries the provider-specific fields a client submits.
// Geetest fills the four lot fields, token based providers fill Token and the
// local provider fills ChallengeID and Answer.
type CaptchaPayload struct {
	LotNumber     string
	CaptchaOutput string
	PassToken     string
	GenTime       string
	Token         string
	ChallengeID   string
	Answer        string
}

// LocalChallenge is a server-issued arithmetic challenge. Only the question
// leaves the server; the answer is kept hashed.
type LocalChallenge struct {
	ID        string
	Question  string
	ExpiresAt time.Time
}

// CaptchaResult is the unified outcome of a provider verification.
type CaptchaResult struct {
	Success   bool
	Message   string
	LotNumber string
	Raw       string
}

// CaptchaVerifyLog records a verification or redemption attempt. A successful,
// unexpired row without ReferenceLogID is a redeemable proof.
type CaptchaVerifyLog struct {
	ID             string
	ConfigID       *string
	Scene          string
	Provider       CaptchaProvider
	LotNumber      *string
	Challenge      *string
	PassToken      *string
	GenTime        *string
	Success        bool
	Result         string
	ErrorMessage   *string
	ClientIP       string
	UserAgent      string
	Phone          *string
	Email          *string
	ReferenceLogID *string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// ProofToken returns whichever proof field is populated.
func (l CaptchaVerifyLog) ProofToken() string {
	if l.LotNumber != nil && *l.LotNumber != "" {
		return *l.LotNumber
	}
	if l.Challenge != nil {
		return *l.Challenge
	}
	return ""
}

// ProofQuery locates a redeemable proof. Scene is intentionally absent.
type ProofQuery struct {
	Token    string
	Provider CaptchaProvider
	Phone    string
	Email    string
}

// SecondVerifyResult is returned by a proof redemption.
type SecondVerifyResult struct {
	Success       bool
	Message       string
	LogID         string
	OriginalScene string
}
