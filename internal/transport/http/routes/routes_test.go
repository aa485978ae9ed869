package routes_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/config"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/transport/http/handlers"
	httproutes "github.com/Mcszl/Auth-Ywxmz-sub000/internal/transport/http/routes"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/usecase"
)

type stubAuth struct {
	users map[string]*domain.User
}

func (s stubAuth) Register(context.Context, usecase.RegisterInput) (*usecase.AuthResult, error) {
	return nil, usecase.ErrUsernameTaken
}

func (s stubAuth) Login(context.Context, usecase.LoginInput) (*usecase.AuthResult, error) {
	return nil, usecase.ErrInvalidCredentials
}

func (s stubAuth) Refresh(context.Context, string, string, string) (*usecase.AuthResult, error) {
	return nil, usecase.ErrUnauthenticated
}

func (s stubAuth) Logout(context.Context, string) error { return nil }

func (s stubAuth) Authenticate(_ context.Context, token string) (*domain.User, error) {
	if u, ok := s.users[token]; ok {
		return u, nil
	}
	return nil, usecase.ErrUnauthenticated
}

type stubAdmin struct{}

func (stubAdmin) ListRules(context.Context) ([]domain.RateLimitRule, error) {
	return []domain.RateLimitRule{{ID: "r1", Name: "per phone", LimitType: domain.LimitPerTarget}}, nil
}
func (stubAdmin) CreateRule(context.Context, usecase.RuleInput) (*domain.RateLimitRule, error) {
	return nil, usecase.ErrInvalidRule
}
func (stubAdmin) UpdateRule(context.Context, string, usecase.RuleInput) (*domain.RateLimitRule, error) {
	return nil, usecase.ErrPolicyNotFound
}
func (stubAdmin) SetRuleEnabled(context.Context, string, bool) error { return nil }
func (stubAdmin) ListCaptchaConfigs(context.Context) ([]domain.CaptchaConfig, error) {
	return nil, nil
}
func (stubAdmin) CreateCaptchaConfig(context.Context, usecase.CaptchaConfigInput) (*domain.CaptchaConfig, error) {
	return nil, usecase.ErrInvalidRule
}
func (stubAdmin) UpdateCaptchaConfig(context.Context, string, usecase.CaptchaConfigInput) (*domain.CaptchaConfig, error) {
	return nil, usecase.ErrPolicyNotFound
}
func (stubAdmin) SetCaptchaConfigEnabled(context.Context, string, bool) error { return nil }

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newEngine(t *testing.T, deps httproutes.Dependencies) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.Config == nil {
		deps.Config = &config.AppConfig{App: config.AppSettings{Env: "test"}}
	}
	deps.Logger = zaptest.NewLogger(t)
	deps.Registry = prometheus.NewRegistry()
	return httproutes.Register(deps)
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	r := newEngine(t, httproutes.Dependencies{})

	rr := do(r, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" || rr.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected correlation headers on every response")
	}
}

func TestReadinessFailsWhenDatabaseDown(t *testing.T) {
	r := newEngine(t, httproutes.Dependencies{Database: failingPinger{}})
	if rr := do(r, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsEndpointExposesHTTPCollectors(t *testing.T) {
	r := newEngine(t, httproutes.Dependencies{Services: httproutes.ServiceSet{Auth: stubAuth{}}})

	do(r, http.MethodPost, "/api/v1/auth/login", "")
	rr := do(r, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `portal_http_requests_total{method="POST",route="/api/v1/auth/login",status="400"}`) {
		t.Fatalf("login request missing from metrics output:\n%s", rr.Body.String())
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	auth := stubAuth{users: map[string]*domain.User{
		"user-token":  {ID: "u1", Roles: []string{"user"}},
		"admin-token": {ID: "a1", Roles: []string{domain.RoleAdmin}},
	}}
	r := newEngine(t, httproutes.Dependencies{Services: httproutes.ServiceSet{Auth: auth, Admin: stubAdmin{}}})

	if rr := do(r, http.MethodGet, "/api/v1/admin/rate-limit-rules", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 anonymous, got %d", rr.Code)
	}
	if rr := do(r, http.MethodGet, "/api/v1/admin/rate-limit-rules", "user-token"); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rr.Code)
	}

	rr := do(r, http.MethodGet, "/api/v1/admin/rate-limit-rules", "admin-token")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rr.Code)
	}
	var env handlers.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rules, ok := env.Data.([]any); !ok || len(rules) != 1 {
		t.Fatalf("unexpected rules payload %+v", env.Data)
	}
}

func TestLoginFailureUsesEnvelope(t *testing.T) {
	r := newEngine(t, httproutes.Dependencies{Services: httproutes.ServiceSet{Auth: stubAuth{}}})

	body := `{"identifier":"13800138000","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var env handlers.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Success || env.Message != "账号或密码错误" || env.TraceID == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}
