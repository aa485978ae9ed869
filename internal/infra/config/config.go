package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App          AppSettings          `mapstructure:"app"`
	Postgres     PostgresSettings     `mapstructure:"postgres"`
	Redis        RedisSettings        `mapstructure:"redis"`
	Kafka        KafkaSettings        `mapstructure:"kafka"`
	Telemetry    TelemetrySettings    `mapstructure:"telemetry"`
	Argon2       Argon2Settings       `mapstructure:"argon2"`
	Auth         AuthSettings         `mapstructure:"auth"`
	Verification VerificationSettings `mapstructure:"verification"`
	Captcha      CaptchaSettings      `mapstructure:"captcha"`
	RateLimit    RateLimitSettings    `mapstructure:"rate_limit"`
	SMS          SMSSettings          `mapstructure:"sms"`
	SMTP         SMTPSettings         `mapstructure:"smtp"`
}

type AppSettings struct {
	Name            string        `mapstructure:"name"`
	Env             string        `mapstructure:"env"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Timezone        string        `mapstructure:"timezone"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	Timezone          string        `mapstructure:"timezone"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and key namespaces
type RedisSettings struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	DB               int           `mapstructure:"db"`
	Password         string        `mapstructure:"password"`
	TLSEnabled       bool          `mapstructure:"tls_enabled"`
	PoolSize         int           `mapstructure:"pool_size"`
	MinIdleConns     int           `mapstructure:"min_idle_conns"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	OpTimeout        time.Duration `mapstructure:"op_timeout"`
	SessionPrefix    string        `mapstructure:"session_prefix"`
	ProofClaimPrefix string        `mapstructure:"proof_claim_prefix"`
	ChallengePrefix  string        `mapstructure:"challenge_prefix"`
	SendLedgerPrefix string        `mapstructure:"send_ledger_prefix"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	Enabled      bool    `mapstructure:"enabled"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// AuthSettings controls opaque login tokens.
type AuthSettings struct {
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// VerificationSettings controls SMS/email codes and multi-step sessions.
type VerificationSettings struct {
	CodeLength        int               `mapstructure:"code_length"`
	CodeTTL           time.Duration     `mapstructure:"code_ttl"`
	MaxVerifyAttempts int               `mapstructure:"max_verify_attempts"`
	SessionTTL        time.Duration     `mapstructure:"session_ttl"`
	SessionSecret     string            `mapstructure:"session_secret"`
	SessionIssuer     string            `mapstructure:"session_issuer"`
	TemplateIDs       map[string]string `mapstructure:"template_ids"`
}

// CaptchaSettings controls human verification.
type CaptchaSettings struct {
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	ProofTTL          time.Duration `mapstructure:"proof_ttl"`
	RequireCaptcha    bool          `mapstructure:"require_captcha"`
	SingleUseProofs   bool          `mapstructure:"single_use_proofs"`
	LocalChallengeTTL time.Duration `mapstructure:"local_challenge_ttl"`
}

// RateLimitSettings configures the send ledger and the fallback rule used
// when no administrator rule matches a send.
type RateLimitSettings struct {
	DefaultRule DefaultRuleSettings      `mapstructure:"default_rule"`
	Endpoint    EndpointThrottleSettings `mapstructure:"endpoint"`
}

// EndpointThrottleSettings caps login and verification attempts per client IP.
type EndpointThrottleSettings struct {
	Enabled           bool          `mapstructure:"enabled"`
	LoginWindow       time.Duration `mapstructure:"login_window"`
	LoginMaxAttempts  int           `mapstructure:"login_max_attempts"`
	VerifyWindow      time.Duration `mapstructure:"verify_window"`
	VerifyMaxAttempts int           `mapstructure:"verify_max_attempts"`
}

type DefaultRuleSettings struct {
	Enabled   bool          `mapstructure:"enabled"`
	LimitType string        `mapstructure:"limit_type"`
	Window    time.Duration `mapstructure:"window"`
	MaxCount  int           `mapstructure:"max_count"`
}

type SMSSettings struct {
	GatewayURL string        `mapstructure:"gateway_url"`
	APIKey     string        `mapstructure:"api_key"`
	SenderID   string        `mapstructure:"sender_id"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SMTPSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// IsProduction reports whether the service runs with production settings.
func (c *AppConfig) IsProduction() bool {
	return c.App.Env == "production"
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("PORTAL")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.timezone",
		"app.cors_origins",
		"app.shutdown_timeout",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.timezone",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.pool_size",
		"redis.min_idle_conns",
		"redis.dial_timeout",
		"redis.op_timeout",
		"redis.session_prefix",
		"redis.proof_claim_prefix",
		"redis.challenge_prefix",
		"redis.send_ledger_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"telemetry.enabled",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"auth.access_token_ttl",
		"auth.refresh_token_ttl",
		"verification.code_length",
		"verification.code_ttl",
		"verification.max_verify_attempts",
		"verification.session_ttl",
		"verification.session_secret",
		"verification.session_issuer",
		"captcha.http_timeout",
		"captcha.proof_ttl",
		"captcha.require_captcha",
		"captcha.single_use_proofs",
		"captcha.local_challenge_ttl",
		"rate_limit.default_rule.enabled",
		"rate_limit.default_rule.limit_type",
		"rate_limit.default_rule.window",
		"rate_limit.default_rule.max_count",
		"rate_limit.endpoint.enabled",
		"rate_limit.endpoint.login_window",
		"rate_limit.endpoint.login_max_attempts",
		"rate_limit.endpoint.verify_window",
		"rate_limit.endpoint.verify_max_attempts",
		"sms.gateway_url",
		"sms.api_key",
		"sms.sender_id",
		"sms.timeout",
		"smtp.host",
		"smtp.port",
		"smtp.user",
		"smtp.password",
		"smtp.from",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.IsProduction() && len(c.Verification.SessionSecret) < 32 {
		return fmt.Errorf("verification.session_secret must be at least 32 bytes in production")
	}
	if c.Verification.CodeLength <= 0 {
		return fmt.Errorf("verification.code_length must be positive")
	}
	if c.RateLimit.DefaultRule.Enabled && (c.RateLimit.DefaultRule.MaxCount <= 0 || c.RateLimit.DefaultRule.Window <= 0) {
		return fmt.Errorf("rate_limit.default_rule requires positive window and max_count")
	}
	if ep := c.RateLimit.Endpoint; ep.Enabled && (ep.LoginWindow <= 0 || ep.LoginMaxAttempts <= 0 || ep.VerifyWindow <= 0 || ep.VerifyMaxAttempts <= 0) {
		return fmt.Errorf("rate_limit.endpoint requires positive windows and attempt limits")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "identity-portal")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.timezone", "Asia/Shanghai")
	v.SetDefault("app.cors_origins", []string{"*"})
	v.SetDefault("app.shutdown_timeout", "10s")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "portal")
	v.SetDefault("postgres.password", "portal_password")
	v.SetDefault("postgres.database", "portal")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.timezone", "Asia/Shanghai")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.op_timeout", "3s")
	v.SetDefault("redis.session_prefix", "portal:vsession")
	v.SetDefault("redis.proof_claim_prefix", "portal:captcha_claim")
	v.SetDefault("redis.challenge_prefix", "portal:captcha_local")
	v.SetDefault("redis.send_ledger_prefix", "portal:send_ledger")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "portal")
	v.SetDefault("kafka.async", true)

	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "identity-portal")
	v.SetDefault("telemetry.sampling_rate", 1.0)
	v.SetDefault("telemetry.enabled", false)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("auth.access_token_ttl", "2h")
	v.SetDefault("auth.refresh_token_ttl", "720h")

	v.SetDefault("verification.code_length", 6)
	v.SetDefault("verification.code_ttl", "10m")
	v.SetDefault("verification.max_verify_attempts", 5)
	v.SetDefault("verification.session_ttl", "10m")
	v.SetDefault("verification.session_secret", "dev-only-verification-session-secret")
	v.SetDefault("verification.session_issuer", "identity-portal")
	v.SetDefault("verification.template_ids", map[string]string{
		"register":       "SMS_REGISTER",
		"login":          "SMS_LOGIN",
		"password_reset": "SMS_PASSWORD_RESET",
		"change_phone":   "SMS_CHANGE_PHONE",
		"change_email":   "EMAIL_CHANGE_EMAIL",
		"bind":           "SMS_BIND",
	})

	v.SetDefault("captcha.http_timeout", "10s")
	v.SetDefault("captcha.proof_ttl", "15m")
	v.SetDefault("captcha.require_captcha", false)
	v.SetDefault("captcha.single_use_proofs", false)
	v.SetDefault("captcha.local_challenge_ttl", "5m")

	v.SetDefault("rate_limit.default_rule.enabled", false)
	v.SetDefault("rate_limit.default_rule.limit_type", "per_phone")
	v.SetDefault("rate_limit.default_rule.window", "60s")
	v.SetDefault("rate_limit.default_rule.max_count", 1)
	v.SetDefault("rate_limit.endpoint.enabled", true)
	v.SetDefault("rate_limit.endpoint.login_window", "5m")
	v.SetDefault("rate_limit.endpoint.login_max_attempts", 20)
	v.SetDefault("rate_limit.endpoint.verify_window", "1m")
	v.SetDefault("rate_limit.endpoint.verify_max_attempts", 30)

	v.SetDefault("sms.timeout", "10s")
	v.SetDefault("smtp.port", 465)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "PORTAL_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
