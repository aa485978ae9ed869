package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/usecase"
)

// AdminService manages rate limit rules and captcha configs.
type AdminService interface {
	ListRules(ctx context.Context) ([]domain.RateLimitRule, error)
	CreateRule(ctx context.Context, in usecase.RuleInput) (*domain.RateLimitRule, error)
	UpdateRule(ctx context.Context, id string, in usecase.RuleInput) (*domain.RateLimitRule, error)
	SetRuleEnabled(ctx context.Context, id string, enabled bool) error
	ListCaptchaConfigs(ctx context.Context) ([]domain.CaptchaConfig, error)
	CreateCaptchaConfig(ctx context.Context, in usecase.CaptchaConfigInput) (*domain.CaptchaConfig, error)
	UpdateCaptchaConfig(ctx context.Context, id string, in usecase.CaptchaConfigInput) (*domain.CaptchaConfig, error)
	SetCaptchaConfigEnabled(ctx context.Context, id string, enabled bool) error
}

// AdminHandler exposes the policy tables to administrators.
type AdminHandler struct {
	admin AdminService
}

func NewAdminHandler(admin AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// RegisterRoutes mounts the admin endpoints on a group already guarded by
// authentication and the admin role.
func (h *AdminHandler) RegisterRoutes(group *gin.RouterGroup) {
	rules := group.Group("/rate-limit-rules")
	rules.GET("", h.ListRules)
	rules.POST("", h.CreateRule)
	rules.PUT("/:id", h.UpdateRule)
	rules.PATCH("/:id/enabled", h.SetRuleEnabled)

	configs := group.Group("/captcha-configs")
	configs.GET("", h.ListCaptchaConfigs)
	configs.POST("", h.CreateCaptchaConfig)
	configs.PUT("/:id", h.UpdateCaptchaConfig)
	configs.PATCH("/:id/enabled", h.SetCaptchaConfigEnabled)
}

// ListRules godoc
// @Summary List rate limit rules
// @Tags Admin
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} Envelope{data=[]RuleResponse}
// @Failure 403 {object} Envelope
// @Router /api/v1/admin/rate-limit-rules [get]
func (h *AdminHandler) ListRules(c *gin.Context) {
	rules, err := h.admin.ListRules(c.Request.Context())
	if err != nil {
		respondError(c, err, "获取限流规则失败")
		return
	}
	out := make([]RuleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, newRuleResponse(r))
	}
	respondOK(c, http.StatusOK, out, "")
}

// CreateRule godoc
// @Summary Create a rate limit rule
// @Tags Admin
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body RuleRequest true "Rule"
// @Success 201 {object} Envelope{data=RuleResponse}
// @Failure 400 {object} Envelope
// @Router /api/v1/admin/rate-limit-rules [post]
func (h *AdminHandler) CreateRule(c *gin.Context) {
	var req RuleRequest
	if !bindJSON(c, &req) {
		return
	}
	rule, err := h.admin.CreateRule(c.Request.Context(), req.toInput())
	if err != nil {
		respondError(c, err, "创建限流规则失败")
		return
	}
	respondOK(c, http.StatusCreated, newRuleResponse(*rule), "创建成功")
}

// UpdateRule godoc
// @Summary Replace a rate limit rule
// @Tags Admin
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Rule id"
// @Param request body RuleRequest true "Rule"
// @Success 200 {object} Envelope{data=RuleResponse}
// @Failure 400 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/v1/admin/rate-limit-rules/{id} [put]
func (h *AdminHandler) UpdateRule(c *gin.Context) {
	var req RuleRequest
	if !bindJSON(c, &req) {
		return
	}
	rule, err := h.admin.UpdateRule(c.Request.Context(), c.Param("id"), req.toInput())
	if err != nil {
		respondError(c, err, "更新限流规则失败")
		return
	}
	respondOK(c, http.StatusOK, newRuleResponse(*rule), "更新成功")
}

// SetRuleEnabled godoc
// @Summary Enable or disable a rate limit rule
// @Tags Admin
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Rule id"
// @Param request body SetEnabledRequest true "Flag"
// @Success 200 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/v1/admin/rate-limit-rules/{id}/enabled [patch]
func (h *AdminHandler) SetRuleEnabled(c *gin.Context) {
	var req SetEnabledRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.admin.SetRuleEnabled(c.Request.Context(), c.Param("id"), *req.Enabled); err != nil {
		respondError(c, err, "更新限流规则失败")
		return
	}
	respondOK(c, http.StatusOK, nil, "更新成功")
}

// ListCaptchaConfigs godoc
// @Summary List captcha configs
// @Description Secrets are masked.
// @Tags Admin
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} Envelope{data=[]CaptchaConfigAdminResponse}
// @Failure 403 {object} Envelope
// @Router /api/v1/admin/captcha-configs [get]
func (h *AdminHandler) ListCaptchaConfigs(c *gin.Context) {
	configs, err := h.admin.ListCaptchaConfigs(c.Request.Context())
	if err != nil {
		respondError(c, err, "获取人机验证配置失败")
		return
	}
	out := make([]CaptchaConfigAdminResponse, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, newCaptchaConfigAdminResponse(cfg))
	}
	respondOK(c, http.StatusOK, out, "")
}

// CreateCaptchaConfig godoc
// @Summary Create a captcha config
// @Tags Admin
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body CaptchaConfigRequest true "Config"
// @Success 201 {object} Envelope{data=CaptchaConfigAdminResponse}
// @Failure 400 {object} Envelope
// @Router /api/v1/admin/captcha-configs [post]
func (h *AdminHandler) CreateCaptchaConfig(c *gin.Context) {
	var req CaptchaConfigRequest
	if !bindJSON(c, &req) {
		return
	}
	cfg, err := h.admin.CreateCaptchaConfig(c.Request.Context(), req.toInput())
	if err != nil {
		respondError(c, err, "创建人机验证配置失败")
		return
	}
	respondOK(c, http.StatusCreated, newCaptchaConfigAdminResponse(*cfg), "创建成功")
}

// UpdateCaptchaConfig godoc
// @Summary Replace a captcha config
// @Tags Admin
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Config id"
// @Param request body CaptchaConfigRequest true "Config"
// @Success 200 {object} Envelope{data=CaptchaConfigAdminResponse}
// @Failure 400 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/v1/admin/captcha-configs/{id} [put]
func (h *AdminHandler) UpdateCaptchaConfig(c *gin.Context) {
	var req CaptchaConfigRequest
	if !bindJSON(c, &req) {
		return
	}
	cfg, err := h.admin.UpdateCaptchaConfig(c.Request.Context(), c.Param("id"), req.toInput())
	if err != nil {
		respondError(c, err, "更新人机验证配置失败")
		return
	}
	respondOK(c, http.StatusOK, newCaptchaConfigAdminResponse(*cfg), "更新成功")
}

// SetCaptchaConfigEnabled godoc
// @Summary Enable or disable a captcha config
// @Tags Admin
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Config id"
// @Param request body SetEnabledRequest true "Flag"
// @Success 200 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/v1/admin/captcha-configs/{id}/enabled [patch]
func (h *AdminHandler) SetCaptchaConfigEnabled(c *gin.Context) {
	var req SetEnabledRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.admin.SetCaptchaConfigEnabled(c.Request.Context(), c.Param("id"), *req.Enabled); err != nil {
		respondError(c, err, "更新人机验证配置失败")
		return
	}
	respondOK(c, http.StatusOK, nil, "更新成功")
}
