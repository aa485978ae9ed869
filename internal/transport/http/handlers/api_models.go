package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/logger"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/usecase"
)

// bindJSON decodes the body and answers 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			switch fe.Tag() {
			case "identifier", "cnphone":
				respondBadRequest(c, "手机号或邮箱格式不正确")
				return false
			case "required":
				respondBadRequest(c, "缺少必填参数: "+fe.Field())
				return false
			}
		}
	}
	respondBadRequest(c, msgInvalidPayload)
	return false
}

// CaptchaPayloadRequest holds the provider-specific captcha fields.
type CaptchaPayloadRequest struct {
	LotNumber     string `json:"lot_number"`
	CaptchaOutput string `json:"captcha_output"`
	PassToken     string `json:"pass_token"`
	GenTime       string `json:"gen_time"`
	Token         string `json:"token"`
	ChallengeID   string `json:"challenge_id"`
	Answer        string `json:"answer"`
}

func (r CaptchaPayloadRequest) toDomain() domain.CaptchaPayload {
	return domain.CaptchaPayload{
		LotNumber:     r.LotNumber,
		CaptchaOutput: r.CaptchaOutput,
		PassToken:     r.PassToken,
		GenTime:       r.GenTime,
		Token:         r.Token,
		ChallengeID:   r.ChallengeID,
		Answer:        r.Answer,
	}
}

// CaptchaVerifyRequest is the first-phase captcha verification payload.
type CaptchaVerifyRequest struct {
	Scene      string `json:"scene" binding:"required"`
	Identifier string `json:"identifier"`
	CaptchaPayloadRequest
}

// CaptchaVerifyResponse returns the proof token to redeem later.
type CaptchaVerifyResponse struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider,omitempty"`
	Token    string `json:"token,omitempty"`
	LogID    string `json:"log_id,omitempty"`
}

// CaptchaSecondVerifyRequest redeems a proof token.
type CaptchaSecondVerifyRequest struct {
	Token      string `json:"token" binding:"required"`
	Identifier string `json:"identifier" binding:"required"`
	Provider   string `json:"provider"`
	Scene      string `json:"scene"`
}

// CaptchaSecondVerifyResponse names the redemption log row.
type CaptchaSecondVerifyResponse struct {
	LogID         string `json:"log_id"`
	OriginalScene string `json:"original_scene"`
}

// CaptchaConfigResponse is the public captcha config for a scene.
type CaptchaConfigResponse struct {
	Enabled   bool   `json:"enabled"`
	Scene     string `json:"scene"`
	Provider  string `json:"provider,omitempty"`
	CaptchaID string `json:"captcha_id,omitempty"`
	SiteKey   string `json:"site_key,omitempty"`
}

func newCaptchaConfigResponse(cfg domain.CaptchaPublicConfig) CaptchaConfigResponse {
	return CaptchaConfigResponse{
		Enabled:   cfg.Enabled,
		Scene:     cfg.Scene,
		Provider:  string(cfg.Provider),
		CaptchaID: cfg.CaptchaID,
		SiteKey:   cfg.SiteKey,
	}
}

// LocalChallengeResponse is a local arithmetic challenge.
type LocalChallengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	Question    string    `json:"question"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SendCodeRequest asks for an SMS or email code.
type SendCodeRequest struct {
	Identifier   string `json:"identifier" binding:"required,identifier"`
	Purpose      string `json:"purpose" binding:"required"`
	CaptchaToken string `json:"captcha_token"`
}

// SendCodeResponse describes an issued code without revealing it.
type SendCodeResponse struct {
	CodeID    string    `json:"code_id"`
	Method    string    `json:"method,omitempty"`
	Channel   string    `json:"channel"`
	Target    string    `json:"target"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in"`
}

func newSendCodeResponse(res *usecase.SendCodeResult) *SendCodeResponse {
	if res == nil {
		return nil
	}
	return &SendCodeResponse{
		CodeID:    res.CodeID,
		Channel:   string(res.Channel),
		Target:    res.MaskedTarget,
		ExpiresAt: res.ExpiresAt,
		ExpiresIn: int(res.ExpiresIn.Seconds()),
	}
}

// newPasswordResetSendResponse names the reset method the way clients send it.
func newPasswordResetSendResponse(res *usecase.SendCodeResult) *SendCodeResponse {
	out := newSendCodeResponse(res)
	if out == nil {
		return nil
	}
	switch res.Channel {
	case domain.ChannelSMS:
		out.Method = "phone"
	case domain.ChannelEmail:
		out.Method = "email"
	}
	return out
}

// VerifyCodeRequest submits a code.
type VerifyCodeRequest struct {
	Identifier string `json:"identifier" binding:"required,identifier"`
	Purpose    string `json:"purpose" binding:"required"`
	Code       string `json:"code" binding:"required"`
}

// VerifyCodeResponse confirms the first verification of a code.
type VerifyCodeResponse struct {
	CodeID    string    `json:"code_id"`
	Verified  bool      `json:"verified"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PasswordResetSendRequest asks for a reset code on a bound contact.
type PasswordResetSendRequest struct {
	Method       string `json:"method" binding:"required"`
	CaptchaToken string `json:"captcha_token"`
}

// PasswordResetVerifyRequest submits the reset code.
type PasswordResetVerifyRequest struct {
	Method string `json:"method" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// PasswordResetTicketResponse carries the reset session token.
type PasswordResetTicketResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ResetPasswordRequest sets a new password with a reset session token.
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ContactChangeStartRequest opens a contact change.
type ContactChangeStartRequest struct {
	Method       string `json:"method" binding:"required"`
	CaptchaToken string `json:"captcha_token"`
}

// ContactChangeStepRequest advances a contact change with a code.
type ContactChangeStepRequest struct {
	Method string `json:"method" binding:"required"`
	Token  string `json:"token" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// ContactChangeSendRequest names the new contact.
type ContactChangeSendRequest struct {
	Method        string `json:"method" binding:"required"`
	Token         string `json:"token" binding:"required"`
	NewIdentifier string `json:"new_identifier" binding:"required,identifier"`
	CaptchaToken  string `json:"captcha_token"`
}

// ContactChangeResponse is the state after a contact change step.
type ContactChangeResponse struct {
	Token     string            `json:"token"`
	Step      string            `json:"step"`
	ExpiresAt time.Time         `json:"expires_at"`
	Code      *SendCodeResponse `json:"code,omitempty"`
}

func newContactChangeResponse(state *usecase.ContactChangeState) ContactChangeResponse {
	return ContactChangeResponse{
		Token:     state.Token,
		Step:      string(state.Step),
		ExpiresAt: state.ExpiresAt,
		Code:      newSendCodeResponse(state.Code),
	}
}

// RegisterRequest creates an account with a verified code.
type RegisterRequest struct {
	Username     string `json:"username" binding:"omitempty,min=3,max=32"`
	Identifier   string `json:"identifier" binding:"required,identifier"`
	Code         string `json:"code" binding:"required"`
	Password     string `json:"password" binding:"required"`
	CaptchaToken string `json:"captcha_token"`
}

// LoginRequest authenticates by phone, email or username.
type LoginRequest struct {
	Identifier   string `json:"identifier" binding:"required"`
	Password     string `json:"password" binding:"required"`
	CaptchaToken string `json:"captcha_token"`
}

// RefreshRequest rotates a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UserSummary is the public view of a user. Contacts are masked.
type UserSummary struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Status       string     `json:"status"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Roles        []string   `json:"roles,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

func newUserSummary(u *domain.User) UserSummary {
	summary := UserSummary{
		ID:           u.ID,
		Username:     u.Username,
		Status:       string(u.Status),
		Roles:        u.Roles,
		RegisteredAt: u.RegisteredAt,
		LastLogin:    u.LastLogin,
	}
	if u.Email != nil {
		summary.Email = logger.MaskEmail(*u.Email)
	}
	if u.Phone != nil {
		summary.Phone = logger.MaskPhone(*u.Phone)
	}
	return summary
}

// AuthResponse is returned by register, login and refresh.
type AuthResponse struct {
	AccessToken      string      `json:"access_token"`
	RefreshToken     string      `json:"refresh_token"`
	TokenType        string      `json:"token_type"`
	ExpiresIn        int         `json:"expires_in"`
	RefreshExpiresAt time.Time   `json:"refresh_expires_at"`
	User             UserSummary `json:"user"`
}

func newAuthResponse(res *usecase.AuthResult, now time.Time) AuthResponse {
	return AuthResponse{
		AccessToken:      res.Tokens.AccessToken,
		RefreshToken:     res.Tokens.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int(res.Tokens.AccessExpiresAt.Sub(now).Seconds()),
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
		User:             newUserSummary(res.User),
	}
}

// RuleRequest defines a rate limit rule.
type RuleRequest struct {
	Name          string `json:"name" binding:"required"`
	Purpose       string `json:"purpose"`
	TemplateID    string `json:"template_id"`
	LimitType     string `json:"limit_type" binding:"required"`
	WindowSeconds int    `json:"window_seconds" binding:"required,gt=0"`
	MaxCount      int    `json:"max_count" binding:"required,gt=0"`
	Enabled       *bool  `json:"enabled"`
	Priority      int    `json:"priority"`
}

func (r RuleRequest) toInput() usecase.RuleInput {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return usecase.RuleInput{
		Name:       r.Name,
		Purpose:    domain.Purpose(r.Purpose),
		TemplateID: r.TemplateID,
		LimitType:  domain.LimitType(r.LimitType),
		Window:     time.Duration(r.WindowSeconds) * time.Second,
		MaxCount:   r.MaxCount,
		Enabled:    enabled,
		Priority:   r.Priority,
	}
}

// RuleResponse is a stored rate limit rule.
type RuleResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Purpose       string    `json:"purpose,omitempty"`
	TemplateID    string    `json:"template_id,omitempty"`
	LimitType     string    `json:"limit_type"`
	WindowSeconds int       `json:"window_seconds"`
	MaxCount      int       `json:"max_count"`
	Enabled       bool      `json:"enabled"`
	Priority      int       `json:"priority"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func newRuleResponse(r domain.RateLimitRule) RuleResponse {
	return RuleResponse{
		ID:            r.ID,
		Name:          r.Name,
		Purpose:       string(r.Purpose),
		TemplateID:    r.TemplateID,
		LimitType:     string(r.LimitType),
		WindowSeconds: int(r.Window / time.Second),
		MaxCount:      r.MaxCount,
		Enabled:       r.Enabled,
		Priority:      r.Priority,
		UpdatedAt:     r.UpdatedAt,
	}
}

// CaptchaConfigRequest defines a captcha provider config.
type CaptchaConfigRequest struct {
	Name      string   `json:"name" binding:"required"`
	Provider  string   `json:"provider" binding:"required"`
	AppID     string   `json:"app_id"`
	AppSecret string   `json:"app_secret"`
	SiteKey   string   `json:"site_key"`
	SecretKey string   `json:"secret_key"`
	Endpoint  string   `json:"endpoint"`
	MinScore  float64  `json:"min_score"`
	Scenes    []string `json:"scenes" binding:"required,min=1"`
	Enabled   *bool    `json:"enabled"`
	Priority  int      `json:"priority"`
	Status    *int     `json:"status"`
}

func (r CaptchaConfigRequest) toInput() usecase.CaptchaConfigInput {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	status := domain.CaptchaStatusActive
	if r.Status != nil {
		status = domain.CaptchaConfigStatus(*r.Status)
	}
	return usecase.CaptchaConfigInput{
		Name:      r.Name,
		Provider:  domain.CaptchaProvider(r.Provider),
		AppID:     r.AppID,
		AppSecret: r.AppSecret,
		SiteKey:   r.SiteKey,
		SecretKey: r.SecretKey,
		Endpoint:  r.Endpoint,
		MinScore:  r.MinScore,
		Scenes:    r.Scenes,
		Enabled:   enabled,
		Priority:  r.Priority,
		Status:    status,
	}
}

// CaptchaConfigAdminResponse is a stored captcha config with masked secrets.
type CaptchaConfigAdminResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Provider  string    `json:"provider"`
	AppID     string    `json:"app_id,omitempty"`
	AppSecret string    `json:"app_secret,omitempty"`
	SiteKey   string    `json:"site_key,omitempty"`
	SecretKey string    `json:"secret_key,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	MinScore  float64   `json:"min_score"`
	Scenes    []string  `json:"scenes"`
	Enabled   bool      `json:"enabled"`
	Priority  int       `json:"priority"`
	Status    int       `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newCaptchaConfigAdminResponse(c domain.CaptchaConfig) CaptchaConfigAdminResponse {
	return CaptchaConfigAdminResponse{
		ID:        c.ID,
		Name:      c.Name,
		Provider:  string(c.Provider),
		AppID:     c.AppID,
		AppSecret: logger.MaskString(c.AppSecret),
		SiteKey:   c.SiteKey,
		SecretKey: logger.MaskString(c.SecretKey),
		Endpoint:  c.Endpoint,
		MinScore:  c.MinScore,
		Scenes:    c.Scenes,
		Enabled:   c.Enabled,
		Priority:  c.Priority,
		Status:    int(c.Status),
		UpdatedAt: c.UpdatedAt,
	}
}

// SetEnabledRequest toggles a rule or config.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}
