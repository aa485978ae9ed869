package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/security"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/usecase"
)

const msgTooManyRequests = "请求过于频繁，请稍后再试"

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves err against the typed errors every handler
// shares, then against cases, and finally falls back to a generic response.
// Fallback errors are attached to the gin context for the access log.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var limited *usecase.RateLimitExceededError
	if errors.As(err, &limited) {
		retry := limited.RetryAfterSeconds()
		message := limited.Reason
		if message == "" {
			message = msgTooManyRequests
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.JSON(http.StatusTooManyRequests, Envelope{
			Success: false,
			Data:    RetryAfterData{RetryAfter: retry},
			Message: message,
			TraceID: traceID(c),
		})
		return
	}

	var weak *security.PasswordValidationError
	if errors.As(err, &weak) && weak.Message != "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, weak.Message))
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// respondError maps err with the shared table and a 500 fallback.
func respondError(c *gin.Context, err error, fallbackMessage string) {
	RespondWithMappedError(c, err, domainErrorCases, http.StatusInternalServerError, fallbackMessage)
}

var domainErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidIdentifier, Status: http.StatusBadRequest, Message: "手机号或邮箱格式不正确"},
	{Err: usecase.ErrInvalidPurpose, Status: http.StatusBadRequest, Message: "验证码用途无效"},
	{Err: usecase.ErrInvalidChannel, Status: http.StatusBadRequest, Message: "不支持的验证方式"},
	{Err: usecase.ErrCaptchaRequired, Status: http.StatusBadRequest, Message: "请先完成人机验证"},
	{Err: usecase.ErrCaptchaFailed, Status: http.StatusBadRequest, Message: "人机验证失败，请重试"},
	{Err: usecase.ErrCaptchaUnavailable, Status: http.StatusServiceUnavailable, Message: "人机验证暂不可用"},
	{Err: usecase.ErrCodeNotFound, Status: http.StatusBadRequest, Message: "验证码不存在或已失效"},
	{Err: usecase.ErrCodeExpired, Status: http.StatusBadRequest, Message: "验证码已过期，请重新获取"},
	{Err: usecase.ErrCodeFormat, Status: http.StatusBadRequest, Message: "验证码格式不正确"},
	{Err: usecase.ErrCodeMismatch, Status: http.StatusBadRequest, Message: "验证码错误"},
	{Err: usecase.ErrCodeAttemptsExceeded, Status: http.StatusBadRequest, Message: "验证码错误次数过多，请重新获取"},
	{Err: usecase.ErrCodeStateInvalid, Status: http.StatusBadRequest, Message: "验证码状态无效，请重新获取"},
	{Err: usecase.ErrDeliveryFailed, Status: http.StatusInternalServerError, Message: "验证码发送失败，请稍后重试"},
	{Err: usecase.ErrSessionInvalid, Status: http.StatusBadRequest, Message: "验证会话无效或已过期，请重新开始"},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "用户不存在"},
	{Err: usecase.ErrUserInactive, Status: http.StatusForbidden, Message: "账号已被禁用"},
	{Err: usecase.ErrUsernameTaken, Status: http.StatusConflict, Message: "用户名已被占用"},
	{Err: usecase.ErrContactMissing, Status: http.StatusBadRequest, Message: "账号未绑定该联系方式"},
	{Err: usecase.ErrContactInUse, Status: http.StatusConflict, Message: "该联系方式已被其他账号绑定"},
	{Err: usecase.ErrContactUnchanged, Status: http.StatusBadRequest, Message: "新联系方式与当前相同"},
	{Err: usecase.ErrPasswordInvalid, Status: http.StatusBadRequest, Message: "密码不符合安全要求"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "账号或密码错误"},
	{Err: usecase.ErrUnauthenticated, Status: http.StatusUnauthorized, Message: "请先登录"},
	{Err: usecase.ErrForbidden, Status: http.StatusForbidden, Message: "权限不足"},
	{Err: usecase.ErrInvalidRule, Status: http.StatusBadRequest, Message: "配置参数无效"},
	{Err: usecase.ErrPolicyNotFound, Status: http.StatusNotFound, Message: "配置不存在"},
}
