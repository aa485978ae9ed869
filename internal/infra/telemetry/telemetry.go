package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "portal"

// Metrics holds the domain counters of the verification core. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	codesSent            *prometheus.CounterVec
	codeVerifications    *prometheus.CounterVec
	rateLimitDenials     *prometheus.CounterVec
	captchaVerifications *prometheus.CounterVec
	secondVerifications  *prometheus.CounterVec
	passwordResets       prometheus.Counter
}

// NewMetrics registers the domain counters on reg, reusing collectors that
// are already registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		codesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_codes_sent_total",
			Help:      "Verification code send attempts by channel, purpose and outcome.",
		}, []string{"channel", "purpose", "result"}),
		codeVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_code_checks_total",
			Help:      "Verification code checks by channel, purpose and outcome.",
		}, []string{"channel", "purpose", "result"}),
		rateLimitDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denials_total",
			Help:      "Sends denied by a rate limit rule.",
		}, []string{"purpose", "limit_type"}),
		captchaVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captcha_verifications_total",
			Help:      "Captcha provider verifications by provider and result.",
		}, []string{"provider", "result"}),
		secondVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captcha_second_verifications_total",
			Help:      "Captcha proof redemptions by provider and result.",
		}, []string{"provider", "result"}),
		passwordResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_resets_total",
			Help:      "Completed password resets.",
		}),
	}

	var err error
	if m.codesSent, err = registerVec(reg, m.codesSent); err != nil {
		return nil, err
	}
	if m.codeVerifications, err = registerVec(reg, m.codeVerifications); err != nil {
		return nil, err
	}
	if m.rateLimitDenials, err = registerVec(reg, m.rateLimitDenials); err != nil {
		return nil, err
	}
	if m.captchaVerifications, err = registerVec(reg, m.captchaVerifications); err != nil {
		return nil, err
	}
	if m.secondVerifications, err = registerVec(reg, m.secondVerifications); err != nil {
		return nil, err
	}
	if err := reg.Register(m.passwordResets); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		m.passwordResets = are.ExistingCollector.(prometheus.Counter)
	}
	return m, nil
}

func registerVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// CodeSent counts a send attempt. outcome is one of sent, rate_limited,
// captcha_failed or dispatch_failed.
func (m *Metrics) CodeSent(channel, purpose, outcome string) {
	if m == nil {
		return
	}
	m.codesSent.WithLabelValues(channel, purpose, outcome).Inc()
}

// CodeChecked counts a verification code check. outcome is one of
// verified, mismatch, expired, exhausted or not_found.
func (m *Metrics) CodeChecked(channel, purpose, outcome string) {
	if m == nil {
		return
	}
	m.codeVerifications.WithLabelValues(channel, purpose, outcome).Inc()
}

func (m *Metrics) RateLimitDenied(purpose, limitType string) {
	if m == nil {
		return
	}
	m.rateLimitDenials.WithLabelValues(purpose, limitType).Inc()
}

func (m *Metrics) CaptchaVerified(provider string, ok bool) {
	if m == nil {
		return
	}
	m.captchaVerifications.WithLabelValues(provider, result(ok)).Inc()
}

func (m *Metrics) CaptchaRedeemed(provider string, ok bool) {
	if m == nil {
		return
	}
	m.secondVerifications.WithLabelValues(provider, result(ok)).Inc()
}

func (m *Metrics) PasswordReset() {
	if m == nil {
		return
	}
	m.passwordResets.Inc()
}
