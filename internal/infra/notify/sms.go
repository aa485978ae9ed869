package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/config"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/logger"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/telemetry"
)

const defaultSMSTimeout = 10 * time.Second

// gatewayResponse is the JSON body returned by the SMS gateway. A zero code
// means the message was accepted.
type gatewayResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MessageID string `json:"message_id"`
	} `json:"data"`
}

// HTTPSMSSender posts templated messages to an HTTP SMS gateway.
type HTTPSMSSender struct {
	gatewayURL string
	apiKey     string
	senderID   string
	client     *http.Client
	logger     *zap.Logger
}

// NewHTTPSMSSender builds a sender for the configured gateway.
func NewHTTPSMSSender(cfg config.SMSSettings, log *zap.Logger) *HTTPSMSSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSMSTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPSMSSender{
		gatewayURL: cfg.GatewayURL,
		apiKey:     cfg.APIKey,
		senderID:   cfg.SenderID,
		client:     &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// Send submits the code with its template parameters.
func (s *HTTPSMSSender) Send(ctx context.Context, msg domain.CodeMessage) error {
	ctx, span := telemetry.Tracer().Start(ctx, "notify.sms.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("sms.template_id", msg.TemplateID),
		attribute.String("sms.purpose", string(msg.Purpose)),
	)

	form := url.Values{
		"api_key":     {s.apiKey},
		"phone":       {msg.Target},
		"template_id": {msg.TemplateID},
		"code":        {msg.Code},
		"ttl_minutes": {strconv.Itoa(int(msg.ExpiresIn.Minutes()))},
	}
	if s.senderID != "" {
		form.Set("sign_name", s.senderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway unreachable")
		return fmt.Errorf("send sms request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	var result gatewayResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parse sms gateway response: %w", err)
	}
	if result.Code != 0 {
		span.SetStatus(codes.Error, result.Message)
		return fmt.Errorf("sms gateway rejected message: code=%d message=%s", result.Code, result.Message)
	}

	logger.WithContext(ctx).Info("sms dispatched",
		zap.String("phone", logger.MaskPhone(msg.Target)),
		zap.String("template_id", msg.TemplateID),
		zap.String("message_id", result.Data.MessageID),
	)
	return nil
}
