package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/config"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/transport/http/handlers"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/transport/http/middleware"
)

// ServiceSet groups the services the HTTP layer depends on. Nil services
// leave their routes unregistered.
type ServiceSet struct {
	Auth          AuthService
	Codes         handlers.CodeService
	Captcha       handlers.CaptchaService
	PasswordReset handlers.PasswordResetService
	Contacts      handlers.ContactChangeService
	Admin         handlers.AdminService
}

// AuthService covers account endpoints and token authentication.
type AuthService interface {
	handlers.AuthService
	middleware.Authenticator
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Throttle *middleware.Throttle
	Services ServiceSet
	Database DatabaseChecker
	Cache    CacheChecker
	// Registry receives HTTP collectors and backs /metrics. Defaults to the
	// prometheus default registry.
	Registry *prometheus.Registry
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if err := handlers.RegisterValidators(); err != nil {
		log.Warn("failed to register request validators", zap.Error(err))
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if deps.Registry != nil {
		registerer, gatherer = deps.Registry, deps.Registry
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Registerer: registerer,
		SkipPaths:  []string{"/metrics", "/healthz", "/readyz"},
	})
	if err != nil {
		log.Warn("http metrics disabled", zap.Error(err))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Tracing())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(deps.Config.App.CORSOrigins))
	r.Use(httpMetrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	throttles := deps.Config.RateLimit.Endpoint
	loginGuards := throttleGuards(deps, "login", throttles.LoginWindow, throttles.LoginMaxAttempts)
	verifyGuards := throttleGuards(deps, "verify", throttles.VerifyWindow, throttles.VerifyMaxAttempts)

	api := r.Group("/api/v1")
	{
		if deps.Services.Captcha != nil {
			handlers.NewCaptchaHandler(deps.Services.Captcha).RegisterRoutes(api.Group("/captcha"), verifyGuards...)
		}
		if deps.Services.Codes != nil {
			handlers.NewCodeHandler(deps.Services.Codes).RegisterRoutes(api.Group("/codes"), verifyGuards...)
		}

		if auth := deps.Services.Auth; auth != nil {
			requireAuth := middleware.RequireAuth(auth)

			handlers.NewAuthHandler(auth).RegisterRoutes(api.Group("/auth"), requireAuth, loginGuards...)

			if deps.Services.PasswordReset != nil {
				handlers.NewPasswordHandler(deps.Services.PasswordReset).RegisterRoutes(api, requireAuth)
			}

			if deps.Services.Contacts != nil {
				contactGroup := api.Group("/contact/change")
				contactGroup.Use(requireAuth)
				handlers.NewContactHandler(deps.Services.Contacts).RegisterRoutes(contactGroup)
			}

			if deps.Services.Admin != nil {
				adminGroup := api.Group("/admin")
				adminGroup.Use(requireAuth, middleware.RequireRole(domain.RoleAdmin))
				handlers.NewAdminHandler(deps.Services.Admin).RegisterRoutes(adminGroup)
			}
		}
	}

	handlers.RegisterSwagger(r)

	return r
}

func throttleGuards(deps Dependencies, name string, window time.Duration, max int) []gin.HandlerFunc {
	if deps.Throttle == nil || !deps.Config.RateLimit.Endpoint.Enabled {
		return nil
	}
	return []gin.HandlerFunc{deps.Throttle.Limit(name, window, max, middleware.ClientIPKey)}
}
