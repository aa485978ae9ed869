package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/usecase"
)

const (
	msgAuthRequired    = "请先登录"
	msgAuthInvalid     = "登录已失效，请重新登录"
	msgAuthForbidden   = "权限不足"
	msgAuthUnavailable = "认证服务暂不可用"

	authenticatedUserKey = "authenticated_user"
)

// ErrorResponse mirrors the handlers envelope for responses written here.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Success: false,
		Message: message,
		TraceID: GetTraceID(c),
	})
}

// Authenticator resolves an access token to its active user.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *gin.Context) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth rejects requests without a valid access token and stores the
// user id and roles on the gin context.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, msgAuthRequired)
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrUnauthenticated), errors.Is(err, usecase.ErrUserNotFound):
				abortWithError(c, http.StatusUnauthorized, msgAuthInvalid)
			case errors.Is(err, usecase.ErrUserInactive):
				abortWithError(c, http.StatusForbidden, "账号已被禁用")
			default:
				_ = c.Error(err)
				abortWithError(c, http.StatusInternalServerError, msgAuthUnavailable)
			}
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(RolesKey, user.Roles)
		c.Set(authenticatedUserKey, user)
		GetRequestContext(c).UserID = user.ID

		c.Next()
	}
}

// RequireRole allows the request when the user holds any of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(RolesKey)
		if !exists {
			abortWithError(c, http.StatusUnauthorized, msgAuthRequired)
			return
		}
		userRoles, _ := v.([]string)
		if !hasAnyRole(userRoles, roles) {
			abortWithError(c, http.StatusForbidden, msgAuthForbidden)
			return
		}
		c.Next()
	}
}

func hasAnyRole(userRoles, required []string) bool {
	for _, want := range required {
		for _, have := range userRoles {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// GetAuthenticatedUserID returns the user id stored by RequireAuth.
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}

// GetAuthenticatedUser returns the user stored by RequireAuth.
func GetAuthenticatedUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(authenticatedUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*domain.User)
	return user, ok && user != nil
}
