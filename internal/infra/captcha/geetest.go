package captcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/logger"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/security"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/telemetry"
)

// DefaultGeetestEndpoint is the geetest v4 API base.
const DefaultGeetestEndpoint = "https://gcaptcha4.geetest.com"

type geetestResponse struct {
	Status string `json:"status"`
	Result string `json:"result"`
	Reason string `json:"reason"`
	Code   string `json:"code"`
	Msg    string `json:"msg"`
}

// GeetestVerifier validates geetest v4 challenges. The config's AppID is the
// captcha_id and AppSecret the captcha_key.
type GeetestVerifier struct {
	client *http.Client
}

func NewGeetestVerifier(timeout time.Duration) *GeetestVerifier {
	return &GeetestVerifier{client: newHTTPClient(timeout)}
}

func (v *GeetestVerifier) Provider() domain.CaptchaProvider { return domain.ProviderGeetest }

func (v *GeetestVerifier) Verify(ctx context.Context, cfg domain.CaptchaConfig, payload domain.CaptchaPayload, clientIP string) domain.CaptchaResult {
	ctx, span := telemetry.Tracer().Start(ctx, "captcha.geetest.validate")
	defer span.End()
	span.SetAttributes(attribute.String("captcha.config_id", cfg.ID))

	if payload.LotNumber == "" || payload.CaptchaOutput == "" || payload.PassToken == "" || payload.GenTime == "" {
		return failure(msgIncomplete, "")
	}
	if cfg.AppID == "" || cfg.AppSecret == "" {
		span.SetStatus(codes.Error, "missing credentials")
		return failure(msgUnavailable, "")
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultGeetestEndpoint
	}
	endpoint += "/validate?captcha_id=" + url.QueryEscape(cfg.AppID)

	form := url.Values{
		"lot_number":     {payload.LotNumber},
		"captcha_output": {payload.CaptchaOutput},
		"pass_token":     {payload.PassToken},
		"gen_time":       {payload.GenTime},
		"sign_token":     {security.HMACSHA256Hex(payload.LotNumber, cfg.AppSecret)},
	}

	body, err := postForm(ctx, v.client, endpoint, form)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider call failed")
		logger.WithContext(ctx).Warn("geetest validate failed",
			zap.Error(err),
			zap.String("response", truncate(body)),
			zap.String("client_ip", logger.MaskIP(clientIP)),
		)
		return failure(msgUnavailable, truncate(body))
	}

	var resp geetestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		span.RecordError(err)
		return failure(msgUnavailable, truncate(body))
	}

	if resp.Result != "success" {
		reason := resp.Reason
		if reason == "" {
			reason = resp.Msg
		}
		logger.WithContext(ctx).Info("geetest challenge rejected",
			zap.String("reason", reason),
			zap.String("status", resp.Status),
		)
		return failure(msgFailed, truncate(body))
	}

	return domain.CaptchaResult{
		Success:   true,
		Message:   "验证通过",
		LotNumber: payload.LotNumber,
		Raw:       truncate(body),
	}
}
