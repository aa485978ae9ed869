package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

func TestSendCodeAndVerify(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res, err := h.verify.SendCode(ctx, SendCodeInput{
		Identifier: " 13800138000 ",
		Purpose:    domain.PurposeRegister,
		ClientIP:   "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Channel != domain.ChannelSMS || res.MaskedTarget != "138****8000" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.ExpiresIn != 10*time.Minute {
		t.Fatalf("expected 600s validity, got %s", res.ExpiresIn)
	}

	msg := h.sender.last(t)
	if !domain.IsSixDigitCode(msg.Code) || msg.TemplateID != "SMS_REGISTER" {
		t.Fatalf("unexpected message %+v", msg)
	}
	stored := h.codes.get(res.CodeID)
	if stored.Status != domain.CodeStatusIssued || stored.CodeHash == msg.Code {
		t.Fatalf("expected hashed issued row, got %+v", stored)
	}

	code, err := h.verify.VerifyCode(ctx, VerifyCodeInput{Identifier: "13800138000", Purpose: domain.PurposeRegister, Code: msg.Code})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if code.Status != domain.CodeStatusFirstVerified || h.codes.get(res.CodeID).Status != domain.CodeStatusFirstVerified {
		t.Fatal("expected code to be first verified")
	}
	if h.events.count(domain.EventCodeIssued) != 1 || h.events.count(domain.EventCodeVerified) != 1 {
		t.Fatalf("unexpected events %v", h.events.events)
	}

	if _, err := h.verify.VerifyCode(ctx, VerifyCodeInput{Identifier: "13800138000", Purpose: domain.PurposeRegister, Code: msg.Code}); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected a verified code to be unusable for a second first-verify, got %v", err)
	}
}

func TestVerifyCodeIsScopedByPurpose(t *testing.T) {
	h := newHarness(t, nil)
	_, plain := h.sendAndCapture("13800138000", domain.PurposeRegister)

	_, err := h.verify.VerifyCode(context.Background(), VerifyCodeInput{Identifier: "13800138000", Purpose: domain.PurposeLogin, Code: plain})
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected not found for another purpose, got %v", err)
	}
}

func TestVerifyCodeMismatchCountsAttempts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	id, plain := h.sendAndCapture("user@example.com", domain.PurposeLogin)

	in := VerifyCodeInput{Identifier: "USER@example.com", Purpose: domain.PurposeLogin, Code: wrongCode(plain)}
	for i := 1; i < 5; i++ {
		if _, err := h.verify.VerifyCode(ctx, in); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i, err)
		}
		if got := h.codes.get(id).VerifyCount; got != i {
			t.Fatalf("expected verify_count %d, got %d", i, got)
		}
		if h.codes.get(id).Status != domain.CodeStatusIssued {
			t.Fatal("mismatch must not change status")
		}
	}

	if _, err := h.verify.VerifyCode(ctx, in); !errors.Is(err, ErrCodeAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded on fifth miss, got %v", err)
	}

	in.Code = plain
	if _, err := h.verify.VerifyCode(ctx, in); !errors.Is(err, ErrCodeAttemptsExceeded) {
		t.Fatalf("expected exhausted code to stay locked, got %v", err)
	}
}

func TestVerifyCodeExpired(t *testing.T) {
	h := newHarness(t, nil)
	_, plain := h.sendAndCapture("13800138000", domain.PurposeRegister)
	h.clock.Advance(10 * time.Minute)

	_, err := h.verify.VerifyCode(context.Background(), VerifyCodeInput{Identifier: "13800138000", Purpose: domain.PurposeRegister, Code: plain})
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected expired at exactly 600s, got %v", err)
	}
}

func TestSendCodeDeliveryFailureBurnsCodeAndReleasesSlot(t *testing.T) {
	h := newHarness(t, nil)
	h.rules.rules = []domain.RateLimitRule{perPhoneRule("r1", 1, time.Minute)}
	h.sender.err = errors.New("gateway timeout")
	ctx := context.Background()

	_, err := h.verify.SendCode(ctx, SendCodeInput{Identifier: "13800138000", Purpose: domain.PurposeRegister, ClientIP: "203.0.113.7"})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected delivery failure, got %v", err)
	}
	if len(h.codes.order) != 1 {
		t.Fatalf("expected one stored row, got %d", len(h.codes.order))
	}
	if status := h.codes.get(h.codes.order[0]).Status; status != domain.CodeStatusConsumed {
		t.Fatalf("expected undelivered code consumed, got %s", status)
	}
	if got := h.ledger.size("r1:target:13800138000"); got != 0 {
		t.Fatalf("expected reservation released, ledger has %d", got)
	}

	h.sender.err = nil
	if _, err := h.verify.SendCode(ctx, SendCodeInput{Identifier: "13800138000", Purpose: domain.PurposeRegister, ClientIP: "203.0.113.7"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestSendCodeRateLimited(t *testing.T) {
	h := newHarness(t, nil)
	h.rules.rules = []domain.RateLimitRule{perPhoneRule("r1", 1, time.Minute)}
	h.sendAndCapture("13800138000", domain.PurposeRegister)
	h.clock.Advance(15 * time.Second)

	_, err := h.verify.SendCode(context.Background(), SendCodeInput{Identifier: "13800138000", Purpose: domain.PurposeRegister})
	var limited *RateLimitExceededError
	if !errors.As(err, &limited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if limited.Rule != "r1" || limited.RetryAfterSeconds() != 45 {
		t.Fatalf("unexpected rate limit error %+v", limited)
	}
	if len(h.codes.order) != 1 {
		t.Fatal("denied send must not persist a code")
	}
}

func TestSendCodeRejectsBadInput(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.verify.SendCode(ctx, SendCodeInput{Identifier: "12345", Purpose: domain.PurposeRegister}); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected invalid identifier, got %v", err)
	}
	if _, err := h.verify.SendCode(ctx, SendCodeInput{Identifier: "13800138000", Purpose: "shopping"}); !errors.Is(err, ErrInvalidPurpose) {
		t.Fatalf("expected invalid purpose, got %v", err)
	}
}

func TestSendCodeRequiresCaptchaWhenSceneConfigured(t *testing.T) {
	h := newHarness(t, nil)
	h.configs.configs = []domain.CaptchaConfig{turnstileConfig(sceneSendSMS)}
	ctx := context.Background()

	_, err := h.verify.SendCode(ctx, SendCodeInput{Identifier: "13800138000", Purpose: domain.PurposeRegister})
	if !errors.Is(err, ErrCaptchaRequired) {
		t.Fatalf("expected captcha required, got %v", err)
	}

	verified, err := h.captcha.VerifyScene(ctx, VerifySceneInput{
		Scene:      sceneSendSMS,
		Payload:    domain.CaptchaPayload{Token: "cf-token"},
		Identifier: "13800138000",
	})
	if err != nil || !verified.Success {
		t.Fatalf("captcha verify: %+v err=%v", verified, err)
	}

	if _, err := h.verify.SendCode(ctx, SendCodeInput{
		Identifier:   "13800138000",
		Purpose:      domain.PurposeRegister,
		CaptchaToken: verified.LotNumber,
	}); err != nil {
		t.Fatalf("expected send with proof to succeed, got %v", err)
	}
}

func TestSecondVerifyAndConsumeTransitions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	id, plain := h.sendAndCapture("13800138000", domain.PurposeBind)

	if err := h.verify.SecondVerify(ctx, domain.ChannelSMS, id); !errors.Is(err, ErrCodeStateInvalid) {
		t.Fatalf("expected issued code to refuse second verify, got %v", err)
	}
	if _, err := h.verify.VerifyCode(ctx, VerifyCodeInput{Identifier: "13800138000", Purpose: domain.PurposeBind, Code: plain}); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := h.verify.SecondVerify(ctx, domain.ChannelSMS, id); err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if err := h.verify.Consume(ctx, domain.ChannelSMS, id); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := h.verify.Consume(ctx, domain.ChannelSMS, id); !errors.Is(err, ErrCodeStateInvalid) {
		t.Fatalf("expected consumed to be terminal, got %v", err)
	}
}

func TestResolveVerifiedAcceptsEitherState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, plain := h.sendAndCapture("13800138000", domain.PurposeRegister)
	in := VerifyCodeInput{Identifier: "13800138000", Purpose: domain.PurposeRegister, Code: plain}

	first, err := h.verify.ResolveVerified(ctx, in)
	if err != nil || first.Status != domain.CodeStatusFirstVerified {
		t.Fatalf("expected issued code to be verified, got %+v err=%v", first, err)
	}
	again, err := h.verify.ResolveVerified(ctx, in)
	if err != nil || again.ID != first.ID {
		t.Fatalf("expected verified code to resolve again, got %+v err=%v", again, err)
	}

	in.Code = wrongCode(plain)
	for i := 1; i < 5; i++ {
		if _, err := h.verify.ResolveVerified(ctx, in); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i, err)
		}
		if got := h.codes.get(first.ID).VerifyCount; got != i {
			t.Fatalf("expected verify_count %d, got %d", i, got)
		}
	}
	if _, err := h.verify.ResolveVerified(ctx, in); !errors.Is(err, ErrCodeAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded on fifth miss, got %v", err)
	}

	in.Code = plain
	if _, err := h.verify.ResolveVerified(ctx, in); !errors.Is(err, ErrCodeAttemptsExceeded) {
		t.Fatalf("expected exhausted verified code to stay locked, got %v", err)
	}
	if status := h.codes.get(first.ID).Status; status != domain.CodeStatusFirstVerified {
		t.Fatalf("guessing must not change status, got %v", status)
	}
}

func TestVerifyCodeRejectsMalformedCodeWithoutAttempt(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	id, _ := h.sendAndCapture("13800138000", domain.PurposeRegister)

	for _, code := range []string{"12345", "1234567", "12a456", ""} {
		in := VerifyCodeInput{Identifier: "13800138000", Purpose: domain.PurposeRegister, Code: code}
		if _, err := h.verify.VerifyCode(ctx, in); !errors.Is(err, ErrCodeFormat) {
			t.Fatalf("VerifyCode(%q): expected format error, got %v", code, err)
		}
		if _, err := h.verify.ResolveVerified(ctx, in); !errors.Is(err, ErrCodeFormat) {
			t.Fatalf("ResolveVerified(%q): expected format error, got %v", code, err)
		}
	}
	if got := h.codes.get(id).VerifyCount; got != 0 {
		t.Fatalf("malformed codes must not count as attempts, got %d", got)
	}
}
