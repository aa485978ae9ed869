package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
)

type fakeLedger struct {
	hits map[string][]time.Time
	err  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{hits: make(map[string][]time.Time)}
}

func (l *fakeLedger) live(key string, window time.Duration, now time.Time) []time.Time {
	var out []time.Time
	for _, at := range l.hits[key] {
		if now.Sub(at) < window {
			out = append(out, at)
		}
	}
	return out
}

func (l *fakeLedger) Count(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	live := l.live(key, window, now)
	if len(live) == 0 {
		return 0, time.Time{}, l.err
	}
	return len(live), live[0], l.err
}

func (l *fakeLedger) Reserve(_ context.Context, slots []port.LedgerSlot, _ string, now time.Time) (port.LedgerVerdict, error) {
	if l.err != nil {
		return port.LedgerVerdict{}, l.err
	}
	for i, slot := range slots {
		if live := l.live(slot.Key, slot.Window, now); len(live) >= slot.MaxCount {
			return port.LedgerVerdict{Allowed: false, Blocked: i, Oldest: live[0]}, nil
		}
	}
	for _, slot := range slots {
		l.hits[slot.Key] = append(l.hits[slot.Key], now)
	}
	return port.LedgerVerdict{Allowed: true}, nil
}

func (l *fakeLedger) Record(_ context.Context, slots []port.LedgerSlot, _ string, now time.Time) error {
	for _, slot := range slots {
		l.hits[slot.Key] = append(l.hits[slot.Key], now)
	}
	return l.err
}

func (l *fakeLedger) Release(context.Context, []string, string) error { return l.err }

func throttledRouter(th *Throttle, max int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(EnrichContext())
	router.POST("/login", th.Limit("login", time.Minute, max, ClientIPKey), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func hit(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = ip + ":40000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestThrottleDeniesAfterLimit(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	now := start
	ledger := newFakeLedger()
	router := throttledRouter(NewThrottle(ledger, nil).WithClock(func() time.Time { return now }), 2)

	for i := 0; i < 2; i++ {
		if rr := hit(router, "203.0.113.7"); rr.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i, rr.Code)
		}
	}

	now = start.Add(15 * time.Second)
	rr := hit(router, "203.0.113.7")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "45" {
		t.Fatalf("expected Retry-After 45, got %q", got)
	}

	var body throttleResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success || body.Data["retry_after"] != float64(45) || body.TraceID == "" {
		t.Fatalf("unexpected body %+v", body)
	}

	if rr := hit(router, "198.51.100.1"); rr.Code != http.StatusOK {
		t.Fatalf("expected other client to pass, got %d", rr.Code)
	}
}

func TestThrottleFailsOpen(t *testing.T) {
	ledger := newFakeLedger()
	ledger.err = errors.New("redis down")
	router := throttledRouter(NewThrottle(ledger, nil), 1)

	for i := 0; i < 3; i++ {
		if rr := hit(router, "203.0.113.7"); rr.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200 while ledger is down, got %d", i, rr.Code)
		}
	}
}

func TestThrottleDisabledWithoutLedger(t *testing.T) {
	router := throttledRouter(NewThrottle(nil, nil), 1)
	for i := 0; i < 3; i++ {
		if rr := hit(router, "203.0.113.7"); rr.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i, rr.Code)
		}
	}
}
