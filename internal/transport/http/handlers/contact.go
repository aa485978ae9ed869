package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/usecase"
)

// ContactChangeService changes a bound phone or email in four steps.
type ContactChangeService interface {
	StartContactChange(ctx context.Context, in usecase.ContactChangeStartInput) (*usecase.ContactChangeState, error)
	VerifyCurrentContact(ctx context.Context, in usecase.ContactChangeStepInput) (*usecase.ContactChangeState, error)
	SendNewContactCode(ctx context.Context, in usecase.ContactChangeSendInput) (*usecase.ContactChangeState, error)
	ConfirmNewContact(ctx context.Context, in usecase.ContactChangeStepInput) error
}

type ContactHandler struct {
	contacts ContactChangeService
}

func NewContactHandler(contacts ContactChangeService) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// RegisterRoutes mounts the change steps on an authenticated group.
func (h *ContactHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/start", h.Start)
	group.POST("/verify-current", h.VerifyCurrent)
	group.POST("/send-new", h.SendNew)
	group.POST("/confirm", h.Confirm)
}

// Start godoc
// @Summary Start a phone or email change
// @Description Sends a code to the current contact, or skips that step when none is bound.
// @Tags Contact
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body ContactChangeStartRequest true "Method"
// @Success 200 {object} Envelope{data=ContactChangeResponse}
// @Failure 400 {object} Envelope
// @Failure 429 {object} Envelope{data=RetryAfterData}
// @Router /api/v1/contact/change/start [post]
func (h *ContactHandler) Start(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	var req ContactChangeStartRequest
	if !bindJSON(c, &req) {
		return
	}

	state, err := h.contacts.StartContactChange(c.Request.Context(), usecase.ContactChangeStartInput{
		UserID:       userID,
		Method:       req.Method,
		ClientIP:     c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
		CaptchaToken: req.CaptchaToken,
	})
	if err != nil {
		respondError(c, err, "操作失败，请稍后重试")
		return
	}
	respondOK(c, http.StatusOK, newContactChangeResponse(state), "")
}

// VerifyCurrent godoc
// @Summary Verify the current contact
// @Tags Contact
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body ContactChangeStepRequest true "Code for the current contact"
// @Success 200 {object} Envelope{data=ContactChangeResponse}
// @Failure 400 {object} Envelope
// @Router /api/v1/contact/change/verify-current [post]
func (h *ContactHandler) VerifyCurrent(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	var req ContactChangeStepRequest
	if !bindJSON(c, &req) {
		return
	}

	state, err := h.contacts.VerifyCurrentContact(c.Request.Context(), usecase.ContactChangeStepInput{
		UserID: userID,
		Method: req.Method,
		Token:  req.Token,
		Code:   req.Code,
	})
	if err != nil {
		respondError(c, err, "验证码校验失败")
		return
	}
	respondOK(c, http.StatusOK, newContactChangeResponse(state), "验证成功")
}

// SendNew godoc
// @Summary Send a code to the new contact
// @Tags Contact
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body ContactChangeSendRequest true "New contact"
// @Success 200 {object} Envelope{data=ContactChangeResponse}
// @Failure 400 {object} Envelope
// @Failure 409 {object} Envelope
// @Failure 429 {object} Envelope{data=RetryAfterData}
// @Router /api/v1/contact/change/send-new [post]
func (h *ContactHandler) SendNew(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	var req ContactChangeSendRequest
	if !bindJSON(c, &req) {
		return
	}

	state, err := h.contacts.SendNewContactCode(c.Request.Context(), usecase.ContactChangeSendInput{
		UserID:        userID,
		Method:        req.Method,
		Token:         req.Token,
		NewIdentifier: req.NewIdentifier,
		ClientIP:      c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
		CaptchaToken:  req.CaptchaToken,
	})
	if err != nil {
		respondError(c, err, "验证码发送失败")
		return
	}
	respondOK(c, http.StatusOK, newContactChangeResponse(state), "验证码已发送")
}

// Confirm godoc
// @Summary Confirm the new contact
// @Tags Contact
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body ContactChangeStepRequest true "Code for the new contact"
// @Success 200 {object} Envelope
// @Failure 400 {object} Envelope
// @Failure 409 {object} Envelope
// @Router /api/v1/contact/change/confirm [post]
func (h *ContactHandler) Confirm(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	var req ContactChangeStepRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.contacts.ConfirmNewContact(c.Request.Context(), usecase.ContactChangeStepInput{
		UserID: userID,
		Method: req.Method,
		Token:  req.Token,
		Code:   req.Code,
	})
	if err != nil {
		respondError(c, err, "修改失败，请稍后重试")
		return
	}
	respondOK(c, http.StatusOK, nil, "修改成功")
}
