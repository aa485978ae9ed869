package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/transport/http/middleware"
)

const msgInvalidPayload = "请求参数错误"

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// RetryAfterData is the data of a 429 response.
type RetryAfterData struct {
	RetryAfter int `json:"retry_after"`
}

func traceID(c *gin.Context) string {
	return middleware.GetTraceID(c)
}

// NewErrorResponse builds a failed envelope carrying the request trace id.
func NewErrorResponse(c *gin.Context, message string) Envelope {
	return Envelope{Success: false, Message: message, TraceID: traceID(c)}
}

func respondOK(c *gin.Context, status int, data any, message string) {
	c.JSON(status, Envelope{Success: true, Data: data, Message: message, TraceID: traceID(c)})
}

func respondBadRequest(c *gin.Context, message string) {
	if message == "" {
		message = msgInvalidPayload
	}
	c.JSON(http.StatusBadRequest, NewErrorResponse(c, message))
}

// authenticatedUserID aborts with 401 when RequireAuth did not run.
func authenticatedUserID(c *gin.Context) (string, bool) {
	id, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "请先登录"))
		return "", false
	}
	return id, true
}

// chain copies middlewares so callers can share one slice across routes.
func chain(middlewares []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(middlewares)+1)
	return append(append(out, middlewares...), handler)
}
