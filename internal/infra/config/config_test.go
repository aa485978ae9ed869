package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Timezone != "Asia/Shanghai" {
		t.Fatalf("unexpected timezone %q", cfg.App.Timezone)
	}
	if cfg.Verification.CodeLength != 6 || cfg.Verification.CodeTTL != 10*time.Minute {
		t.Fatalf("unexpected verification defaults: %+v", cfg.Verification)
	}
	if cfg.Captcha.ProofTTL != 15*time.Minute || cfg.Captcha.HTTPTimeout != 10*time.Second {
		t.Fatalf("unexpected captcha defaults: %+v", cfg.Captcha)
	}
	if cfg.Captcha.RequireCaptcha || cfg.Captcha.SingleUseProofs {
		t.Fatal("captcha enforcement flags should default to off")
	}
	if !cfg.RateLimit.Endpoint.Enabled {
		t.Fatal("endpoint throttle should default to on")
	}
	if cfg.IsProduction() {
		t.Fatal("default env must not be production")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORTAL_APP_PORT", "9090")
	t.Setenv("PORTAL_CAPTCHA_REQUIRE_CAPTCHA", "true")
	t.Setenv("PORTAL_VERIFICATION_CODE_TTL", "5m")
	t.Setenv("PORTAL_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Port != 9090 {
		t.Fatalf("expected port override, got %d", cfg.App.Port)
	}
	if !cfg.Captcha.RequireCaptcha {
		t.Fatal("expected require_captcha override")
	}
	if cfg.Verification.CodeTTL != 5*time.Minute {
		t.Fatalf("expected code ttl override, got %s", cfg.Verification.CodeTTL)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Fatalf("expected two brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"short production secret": {
			"PORTAL_APP_ENV":                     "production",
			"PORTAL_VERIFICATION_SESSION_SECRET": "too-short",
		},
		"zero code length": {
			"PORTAL_VERIFICATION_CODE_LENGTH": "0",
		},
		"default rule without limit": {
			"PORTAL_RATE_LIMIT_DEFAULT_RULE_ENABLED":   "true",
			"PORTAL_RATE_LIMIT_DEFAULT_RULE_MAX_COUNT": "0",
		},
		"throttle without window": {
			"PORTAL_RATE_LIMIT_ENDPOINT_LOGIN_WINDOW": "0s",
		},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
