package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	appLogger "github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/logger"
)

const msgTooManyRequests = "请求过于频繁，请稍后再试"

// KeyFunc derives the throttle bucket for a request. An empty key skips
// throttling.
type KeyFunc func(c *gin.Context) string

// ClientIPKey buckets requests by client IP.
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// Throttle limits hits per endpoint group with the same sliding-window ledger
// that backs verification code sends.
type Throttle struct {
	ledger port.SendLedger
	logger *zap.Logger
	now    func() time.Time
}

type throttleResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Message string         `json:"message"`
	TraceID string         `json:"trace_id,omitempty"`
}

func NewThrottle(ledger port.SendLedger, logger *zap.Logger) *Throttle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttle{ledger: ledger, logger: logger, now: time.Now}
}

// WithClock overrides the clock used for window arithmetic.
func (t *Throttle) WithClock(clock func() time.Time) *Throttle {
	if clock != nil {
		t.now = clock
	}
	return t
}

// Limit allows at most max hits per key within window for the named group.
// Ledger failures let the request through.
func (t *Throttle) Limit(name string, window time.Duration, max int, key KeyFunc) gin.HandlerFunc {
	if t == nil || t.ledger == nil || window <= 0 || max <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if key == nil {
		key = ClientIPKey
	}

	return func(c *gin.Context) {
		bucket := key(c)
		if bucket == "" {
			c.Next()
			return
		}

		now := t.now()
		slot := port.LedgerSlot{Key: "http:" + name + ":" + bucket, Window: window, MaxCount: max}
		verdict, err := t.ledger.Reserve(c.Request.Context(), []port.LedgerSlot{slot}, uuid.NewString(), now)
		if err != nil {
			t.logger.Warn("endpoint throttle unavailable, allowing request",
				zap.String("request_id", appLogger.RequestIDFromContext(c.Request.Context())),
				zap.String("group", name),
				zap.Error(err),
			)
			c.Next()
			return
		}
		if verdict.Allowed {
			c.Next()
			return
		}

		retry := retryAfterSeconds(verdict.Oldest.Add(window).Sub(now))
		t.logger.Info("endpoint throttled",
			zap.String("request_id", appLogger.RequestIDFromContext(c.Request.Context())),
			zap.String("group", name),
			zap.String("client_ip", appLogger.MaskIP(c.ClientIP())),
			zap.Int("retry_after", retry),
		)

		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, throttleResponse{
			Success: false,
			Data:    map[string]any{"retry_after": retry},
			Message: msgTooManyRequests,
			TraceID: GetTraceID(c),
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
