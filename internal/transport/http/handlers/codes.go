package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/transport/http/middleware"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/usecase"
)

// CodeService sends and checks SMS and email verification codes.
type CodeService interface {
	SendCode(ctx context.Context, in usecase.SendCodeInput) (*usecase.SendCodeResult, error)
	VerifyCode(ctx context.Context, in usecase.VerifyCodeInput) (*domain.VerificationCode, error)
}

// CodeHandler exposes the generic code endpoints.
type CodeHandler struct {
	codes CodeService
}

func NewCodeHandler(codes CodeService) *CodeHandler {
	return &CodeHandler{codes: codes}
}

// RegisterRoutes mounts send and verify on group. verifyMiddlewares guard
// only the verify endpoint since sends have their own rules.
func (h *CodeHandler) RegisterRoutes(group *gin.RouterGroup, verifyMiddlewares ...gin.HandlerFunc) {
	group.POST("/send", h.Send)
	group.POST("/verify", chain(verifyMiddlewares, h.Verify)...)
}

// Send godoc
// @Summary Send a verification code
// @Description Sends an SMS or email code after captcha and rate limit checks.
// @Tags Codes
// @Accept json
// @Produce json
// @Param request body SendCodeRequest true "Send request"
// @Success 200 {object} Envelope{data=SendCodeResponse}
// @Failure 400 {object} Envelope
// @Failure 429 {object} Envelope{data=RetryAfterData}
// @Failure 500 {object} Envelope
// @Router /api/v1/codes/send [post]
func (h *CodeHandler) Send(c *gin.Context) {
	var req SendCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	userID, _ := middleware.GetAuthenticatedUserID(c)
	res, err := h.codes.SendCode(c.Request.Context(), usecase.SendCodeInput{
		Identifier:   req.Identifier,
		Purpose:      domain.Purpose(req.Purpose),
		ClientIP:     c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
		UserID:       userID,
		CaptchaToken: req.CaptchaToken,
	})
	if err != nil {
		respondError(c, err, "验证码发送失败")
		return
	}
	respondOK(c, http.StatusOK, newSendCodeResponse(res), "验证码已发送")
}

// Verify godoc
// @Summary Verify a code
// @Tags Codes
// @Accept json
// @Produce json
// @Param request body VerifyCodeRequest true "Verify request"
// @Success 200 {object} Envelope{data=VerifyCodeResponse}
// @Failure 400 {object} Envelope
// @Failure 500 {object} Envelope
// @Router /api/v1/codes/verify [post]
func (h *CodeHandler) Verify(c *gin.Context) {
	var req VerifyCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	code, err := h.codes.VerifyCode(c.Request.Context(), usecase.VerifyCodeInput{
		Identifier: req.Identifier,
		Purpose:    domain.Purpose(req.Purpose),
		Code:       req.Code,
	})
	if err != nil {
		respondError(c, err, "验证码校验失败")
		return
	}
	respondOK(c, http.StatusOK, VerifyCodeResponse{CodeID: code.ID, Verified: true, ExpiresAt: code.ExpiresAt}, "验证成功")
}
