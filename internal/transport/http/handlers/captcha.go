package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/usecase"
)

// CaptchaService is the captcha behaviour the HTTP layer needs.
type CaptchaService interface {
	PublicConfig(ctx context.Context, scene string) (domain.CaptchaPublicConfig, error)
	GeetestPublicConfig(ctx context.Context, scene string) (domain.CaptchaPublicConfig, error)
	IssueLocalChallenge(ctx context.Context) (domain.LocalChallenge, error)
	VerifyScene(ctx context.Context, in usecase.VerifySceneInput) (*usecase.VerifySceneResult, error)
	VerifySecondTime(ctx context.Context, in usecase.SecondVerifyInput) (domain.SecondVerifyResult, error)
}

// CaptchaHandler exposes captcha configuration and both verification phases.
type CaptchaHandler struct {
	captcha CaptchaService
}

func NewCaptchaHandler(captcha CaptchaService) *CaptchaHandler {
	return &CaptchaHandler{captcha: captcha}
}

// RegisterRoutes mounts the captcha endpoints on group.
func (h *CaptchaHandler) RegisterRoutes(group *gin.RouterGroup, verifyMiddlewares ...gin.HandlerFunc) {
	group.GET("/config", h.GetConfig)
	group.GET("/geetest/config", h.GetGeetestConfig)
	group.POST("/local/challenge", h.IssueLocalChallenge)
	group.POST("/verify", chain(verifyMiddlewares, h.Verify)...)
	group.POST("/second-verify", chain(verifyMiddlewares, h.SecondVerify)...)
}

// GetConfig godoc
// @Summary Captcha config for a scene
// @Description Returns the public captcha configuration. enabled=false means the scene needs no captcha.
// @Tags Captcha
// @Produce json
// @Param scene query string true "Business scene, e.g. send_sms"
// @Success 200 {object} Envelope{data=CaptchaConfigResponse}
// @Failure 400 {object} Envelope
// @Router /api/v1/captcha/config [get]
func (h *CaptchaHandler) GetConfig(c *gin.Context) {
	h.renderConfig(c, h.captcha.PublicConfig)
}

// GetGeetestConfig godoc
// @Summary Geetest config for a scene
// @Tags Captcha
// @Produce json
// @Param scene query string true "Business scene"
// @Success 200 {object} Envelope{data=CaptchaConfigResponse}
// @Failure 400 {object} Envelope
// @Router /api/v1/captcha/geetest/config [get]
func (h *CaptchaHandler) GetGeetestConfig(c *gin.Context) {
	h.renderConfig(c, h.captcha.GeetestPublicConfig)
}

func (h *CaptchaHandler) renderConfig(c *gin.Context, lookup func(context.Context, string) (domain.CaptchaPublicConfig, error)) {
	scene := strings.TrimSpace(c.Query("scene"))
	if scene == "" {
		respondBadRequest(c, "缺少场景参数")
		return
	}

	cfg, err := lookup(c.Request.Context(), scene)
	if err != nil {
		respondError(c, err, "获取人机验证配置失败")
		return
	}
	respondOK(c, http.StatusOK, newCaptchaConfigResponse(cfg), "")
}

// IssueLocalChallenge godoc
// @Summary Issue a local arithmetic challenge
// @Tags Captcha
// @Produce json
// @Success 200 {object} Envelope{data=LocalChallengeResponse}
// @Failure 503 {object} Envelope
// @Router /api/v1/captcha/local/challenge [post]
func (h *CaptchaHandler) IssueLocalChallenge(c *gin.Context) {
	challenge, err := h.captcha.IssueLocalChallenge(c.Request.Context())
	if err != nil {
		respondError(c, err, "生成验证题目失败")
		return
	}
	respondOK(c, http.StatusOK, LocalChallengeResponse{
		ChallengeID: challenge.ID,
		Question:    challenge.Question,
		ExpiresAt:   challenge.ExpiresAt,
	}, "")
}

// Verify godoc
// @Summary Verify a captcha
// @Description First phase. On success returns the proof token that protected endpoints redeem.
// @Tags Captcha
// @Accept json
// @Produce json
// @Param request body CaptchaVerifyRequest true "Captcha payload"
// @Success 200 {object} Envelope{data=CaptchaVerifyResponse}
// @Failure 400 {object} Envelope
// @Failure 500 {object} Envelope
// @Router /api/v1/captcha/verify [post]
func (h *CaptchaHandler) Verify(c *gin.Context) {
	var req CaptchaVerifyRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.captcha.VerifyScene(c.Request.Context(), usecase.VerifySceneInput{
		Scene:      strings.TrimSpace(req.Scene),
		Payload:    req.toDomain(),
		ClientIP:   c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Identifier: req.Identifier,
	})
	if err != nil {
		respondError(c, err, "人机验证服务异常")
		return
	}

	data := CaptchaVerifyResponse{
		Enabled:  res.Enabled,
		Provider: string(res.Provider),
		Token:    res.LotNumber,
		LogID:    res.LogID,
	}
	if !res.Success {
		c.JSON(http.StatusBadRequest, Envelope{Success: false, Data: data, Message: res.Message, TraceID: traceID(c)})
		return
	}
	respondOK(c, http.StatusOK, data, res.Message)
}

// SecondVerify godoc
// @Summary Redeem a captcha proof
// @Description Second phase. Matches token, identifier and provider; the scene only labels the log row.
// @Tags Captcha
// @Accept json
// @Produce json
// @Param request body CaptchaSecondVerifyRequest true "Proof redemption"
// @Success 200 {object} Envelope{data=CaptchaSecondVerifyResponse}
// @Failure 400 {object} Envelope
// @Failure 500 {object} Envelope
// @Router /api/v1/captcha/second-verify [post]
func (h *CaptchaHandler) SecondVerify(c *gin.Context) {
	var req CaptchaSecondVerifyRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.captcha.VerifySecondTime(c.Request.Context(), usecase.SecondVerifyInput{
		Token:      req.Token,
		Identifier: req.Identifier,
		Provider:   domain.CaptchaProvider(strings.ToLower(strings.TrimSpace(req.Provider))),
		Scene:      strings.TrimSpace(req.Scene),
		ClientIP:   c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err, "人机验证服务异常")
		return
	}
	if !res.Success {
		respondBadRequest(c, res.Message)
		return
	}
	respondOK(c, http.StatusOK, CaptchaSecondVerifyResponse{LogID: res.LogID, OriginalScene: res.OriginalScene}, res.Message)
}
