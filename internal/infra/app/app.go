package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	captchainfra "github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/captcha"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/config"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/database"
	kafkainfra "github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/kafka"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/logger"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/notify"
	redisinfra "github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/redis"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/security"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/telemetry"
	postgresrepo "github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository/postgres"
	redisrepo "github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository/redis"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/transport/http/middleware"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/transport/http/routes"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/usecase"
)

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if cfg.App.Timezone != "" {
		loc, err := time.LoadLocation(cfg.App.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.App.Timezone, err)
		}
		time.Local = loc
	}

	application := &Application{cfg: cfg, logger: log}

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		application.tracer = tp
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		application.close()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	application.pool = pool

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		application.close()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	application.redis = redisClient

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		application.close()
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	signer, err := security.NewSessionTokenSigner(cfg.Verification.SessionSecret, cfg.Verification.SessionIssuer)
	if err != nil {
		application.close()
		return nil, fmt.Errorf("init session signer: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		application.close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	events := application.eventPublisher()

	repos := postgresrepo.NewRepositories(pool)
	rdb := redisClient.Client()
	ledger := redisrepo.NewSendLedgerRepository(rdb, cfg.Redis.SendLedgerPrefix)
	sessions := redisrepo.NewVerificationSessionRepository(rdb, cfg.Redis.SessionPrefix)
	claims := redisrepo.NewProofClaimRepository(rdb, cfg.Redis.ProofClaimPrefix)
	challenges := redisrepo.NewLocalChallengeRepository(rdb, cfg.Redis.ChallengePrefix)

	captchaTimeout := cfg.Captcha.HTTPTimeout
	captchaService := usecase.NewCaptchaService(cfg.Captcha, repos.CaptchaConfigs, repos.CaptchaLogs, claims, events, metrics, log,
		captchainfra.NewLocalProvider(challenges, cfg.Captcha.LocalChallengeTTL),
		captchainfra.NewGeetestVerifier(captchaTimeout),
		captchainfra.NewTurnstileVerifier(captchaTimeout),
		captchainfra.NewRecaptchaVerifier(captchaTimeout),
		captchainfra.NewHCaptchaVerifier(captchaTimeout),
	)

	limiter := usecase.NewRateLimitService(repos.RateLimitRules, ledger, cfg.RateLimit.DefaultRule, metrics, log)
	codeService := usecase.NewVerificationCodeService(cfg.Verification, repos.Codes, limiter, captchaService, application.codeSender(), events, metrics, log)
	policy := security.NewPasswordPolicy()

	authService := usecase.NewAuthService(cfg.Auth, usecase.AuthDeps{
		Users:   repos.Users,
		Tokens:  repos.Tokens,
		Codes:   codeService,
		Captcha: captchaService,
		UoW:     repos.UnitOfWork,
		Hasher:  hasher,
		Policy:  policy,
		Events:  events,
	}, log)

	resetService := usecase.NewPasswordResetService(cfg.Verification, usecase.PasswordResetDeps{
		Users:    repos.Users,
		Codes:    codeService,
		Sessions: sessions,
		Signer:   signer,
		UoW:      repos.UnitOfWork,
		Hasher:   hasher,
		Policy:   policy,
		Events:   events,
		Metrics:  metrics,
	}, log)

	contactService := usecase.NewContactChangeService(cfg.Verification, repos.Users, codeService, sessions, signer, repos.UnitOfWork, events, log)
	adminService := usecase.NewAdminService(repos.RateLimitRules, repos.CaptchaConfigs, log)

	application.engine = routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Throttle: middleware.NewThrottle(ledger, log),
		Database: pool,
		Cache:    redisClient,
		Registry: registry,
		Services: routes.ServiceSet{
			Auth:          authService,
			Codes:         codeService,
			Captcha:       captchaService,
			PasswordReset: resetService,
			Contacts:      contactService,
			Admin:         adminService,
		},
	})

	return application, nil
}

// eventPublisher returns the Kafka publisher, or a logging stub when no
// brokers are configured or the producer cannot start.
func (a *Application) eventPublisher() port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.producer = producer
	a.logger.Info("kafka event publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
}

// codeSender routes SMS to the HTTP gateway and email to SMTP. A channel
// without configuration logs codes instead, which is refused in production.
func (a *Application) codeSender() port.CodeSender {
	router := notify.NewRouter()
	fallback := notify.NewLogSender(a.logger)

	if a.cfg.SMS.GatewayURL != "" {
		router.Register(domain.ChannelSMS, notify.NewHTTPSMSSender(a.cfg.SMS, a.logger))
	} else if !a.cfg.IsProduction() {
		router.Register(domain.ChannelSMS, fallback)
	} else {
		a.logger.Warn("sms gateway not configured, sms codes cannot be delivered")
	}

	if a.cfg.SMTP.Host != "" {
		router.Register(domain.ChannelEmail, notify.NewSMTPEmailSender(a.cfg.SMTP, a.logger))
	} else if !a.cfg.IsProduction() {
		router.Register(domain.ChannelEmail, fallback)
	} else {
		a.logger.Warn("smtp not configured, email codes cannot be delivered")
	}

	return router
}

func (a *Application) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("failed to close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			a.logger.Warn("failed to shut down tracer", zap.Error(err))
		}
	}
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity portal API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		timeout := a.cfg.App.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		a.logger.Info("shutting down identity portal API")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
