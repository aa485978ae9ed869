// Package captcha implements human-verification providers behind
// port.CaptchaVerifier.
package captcha

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/security"
)

const (
	// DefaultTimeout bounds every provider round trip. Calls are never retried.
	DefaultTimeout = 10 * time.Second

	maxRawResponse = 2048

	msgIncomplete  = "人机验证参数不完整"
	msgFailed      = "人机验证失败"
	msgUnavailable = "人机验证服务暂时不可用"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// postForm sends a urlencoded POST and returns the body of a 200 response.
func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return body, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return body, nil
}

func truncate(b []byte) string {
	if len(b) > maxRawResponse {
		return string(b[:maxRawResponse])
	}
	return string(b)
}

// syntheticLotNumber stands in for a geetest lot number on providers that
// return none, so every success can be redeemed the same way.
func syntheticLotNumber(p domain.CaptchaProvider) string {
	suffix, err := security.RandomHex(16)
	if err != nil {
		suffix = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return string(p) + "_" + suffix
}

func failure(message, raw string) domain.CaptchaResult {
	return domain.CaptchaResult{Success: false, Message: message, Raw: raw}
}
