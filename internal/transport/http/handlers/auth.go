package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/transport/http/middleware"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/usecase"
)

// AuthService registers, signs in and signs out users.
type AuthService interface {
	Register(ctx context.Context, in usecase.RegisterInput) (*usecase.AuthResult, error)
	Login(ctx context.Context, in usecase.LoginInput) (*usecase.AuthResult, error)
	Refresh(ctx context.Context, refreshToken, clientIP, userAgent string) (*usecase.AuthResult, error)
	Logout(ctx context.Context, accessToken string) error
}

// AuthHandler exposes the account endpoints.
type AuthHandler struct {
	auth AuthService
	now  func() time.Time
}

func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth, now: time.Now}
}

// RegisterRoutes mounts the auth endpoints. loginMiddlewares guard register
// and login.
func (h *AuthHandler) RegisterRoutes(group *gin.RouterGroup, auth gin.HandlerFunc, loginMiddlewares ...gin.HandlerFunc) {
	group.POST("/register", chain(loginMiddlewares, h.Register)...)
	group.POST("/login", chain(loginMiddlewares, h.Login)...)
	group.POST("/refresh", h.Refresh)
	group.POST("/logout", auth, h.Logout)
	group.GET("/me", auth, h.Me)
}

// Register godoc
// @Summary Register an account
// @Description Creates a user bound to a phone or email proven by a verification code.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration"
// @Success 201 {object} Envelope{data=AuthResponse}
// @Failure 400 {object} Envelope
// @Failure 409 {object} Envelope
// @Failure 500 {object} Envelope
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.auth.Register(c.Request.Context(), usecase.RegisterInput{
		Username:     req.Username,
		Identifier:   req.Identifier,
		Code:         req.Code,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		ClientIP:     c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err, "注册失败，请稍后重试")
		return
	}
	respondOK(c, http.StatusCreated, newAuthResponse(res, h.now()), "注册成功")
}

// Login godoc
// @Summary Sign in
// @Description Accepts a phone number, email or username with the password.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} Envelope{data=AuthResponse}
// @Failure 400 {object} Envelope
// @Failure 401 {object} Envelope
// @Failure 403 {object} Envelope
// @Failure 429 {object} Envelope{data=RetryAfterData}
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Identifier:   req.Identifier,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		ClientIP:     c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err, "登录失败，请稍后重试")
		return
	}
	respondOK(c, http.StatusOK, newAuthResponse(res, h.now()), "登录成功")
}

// Refresh godoc
// @Summary Rotate tokens
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh token"
// @Success 200 {object} Envelope{data=AuthResponse}
// @Failure 401 {object} Envelope
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, err, "刷新登录状态失败")
		return
	}
	respondOK(c, http.StatusOK, newAuthResponse(res, h.now()), "")
}

// Logout godoc
// @Summary Sign out
// @Tags Auth
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} Envelope
// @Failure 401 {object} Envelope
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "请先登录"))
		return
	}
	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		respondError(c, err, "退出登录失败")
		return
	}
	respondOK(c, http.StatusOK, nil, "已退出登录")
}

// Me godoc
// @Summary Current user
// @Tags Auth
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} Envelope{data=UserSummary}
// @Failure 401 {object} Envelope
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.GetAuthenticatedUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "请先登录"))
		return
	}
	respondOK(c, http.StatusOK, newUserSummary(user), "")
}
