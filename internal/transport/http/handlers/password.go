package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/usecase"
)

// PasswordResetService drives the code based password reset.
type PasswordResetService interface {
	SendPasswordResetCode(ctx context.Context, in usecase.PasswordResetSendInput) (*usecase.SendCodeResult, error)
	VerifyPasswordResetCode(ctx context.Context, in usecase.PasswordResetVerifyInput) (*usecase.PasswordResetTicket, error)
	ResetPassword(ctx context.Context, in usecase.ResetPasswordInput) error
}

// PasswordHandler exposes the password reset endpoints.
type PasswordHandler struct {
	reset PasswordResetService
}

func NewPasswordHandler(reset PasswordResetService) *PasswordHandler {
	return &PasswordHandler{reset: reset}
}

// RegisterRoutes mounts the reset endpoints. The first two steps run for the
// signed-in user, the last authorizes itself with the reset token.
func (h *PasswordHandler) RegisterRoutes(group *gin.RouterGroup, auth gin.HandlerFunc) {
	group.POST("/SendPasswordResetCode", auth, h.SendPasswordResetCode)
	group.POST("/VerifyPasswordResetCode", auth, h.VerifyPasswordResetCode)
	group.POST("/ResetPassword", h.ResetPassword)
}

// SendPasswordResetCode godoc
// @Summary Send a password reset code
// @Description Sends a code to the phone or email bound to the current user.
// @Tags Password
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body PasswordResetSendRequest true "Reset method"
// @Success 200 {object} Envelope{data=SendCodeResponse}
// @Failure 400 {object} Envelope
// @Failure 401 {object} Envelope
// @Failure 429 {object} Envelope{data=RetryAfterData}
// @Failure 500 {object} Envelope
// @Router /api/v1/SendPasswordResetCode [post]
func (h *PasswordHandler) SendPasswordResetCode(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	var req PasswordResetSendRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.reset.SendPasswordResetCode(c.Request.Context(), usecase.PasswordResetSendInput{
		UserID:       userID,
		Method:       req.Method,
		ClientIP:     c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
		CaptchaToken: req.CaptchaToken,
	})
	if err != nil {
		respondError(c, err, "验证码发送失败")
		return
	}
	respondOK(c, http.StatusOK, newPasswordResetSendResponse(res), "验证码已发送")
}

// VerifyPasswordResetCode godoc
// @Summary Verify a password reset code
// @Description Returns a short-lived token that authorizes ResetPassword.
// @Tags Password
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body PasswordResetVerifyRequest true "Reset code"
// @Success 200 {object} Envelope{data=PasswordResetTicketResponse}
// @Failure 400 {object} Envelope
// @Failure 401 {object} Envelope
// @Failure 500 {object} Envelope
// @Router /api/v1/VerifyPasswordResetCode [post]
func (h *PasswordHandler) VerifyPasswordResetCode(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	var req PasswordResetVerifyRequest
	if !bindJSON(c, &req) {
		return
	}

	ticket, err := h.reset.VerifyPasswordResetCode(c.Request.Context(), usecase.PasswordResetVerifyInput{
		UserID:   userID,
		Method:   req.Method,
		Code:     req.Code,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		respondError(c, err, "验证码校验失败")
		return
	}
	respondOK(c, http.StatusOK, PasswordResetTicketResponse{Token: ticket.Token, ExpiresAt: ticket.ExpiresAt}, "验证成功")
}

// ResetPassword godoc
// @Summary Reset the password
// @Description Sets a new password and revokes every token of the user.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Reset token and new password"
// @Success 200 {object} Envelope
// @Failure 400 {object} Envelope
// @Failure 500 {object} Envelope
// @Router /api/v1/ResetPassword [post]
func (h *PasswordHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.reset.ResetPassword(c.Request.Context(), usecase.ResetPasswordInput{
		Token:       req.Token,
		NewPassword: req.NewPassword,
		ClientIP:    c.ClientIP(),
	})
	if err != nil {
		respondError(c, err, "密码重置失败")
		return
	}
	respondOK(c, http.StatusOK, nil, "密码已重置，请重新登录")
}
