package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/infra/security"
)

const newPassword = "N3w!Passphrase#2025"

func seedTokens(t *testing.T, h *harness, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := h.auth.issueTokens(context.Background(), userID, "", ""); err != nil {
			t.Fatalf("seed tokens: %v", err)
		}
	}
}

func openResetTicket(t *testing.T, h *harness, userID, method string) (*PasswordResetTicket, string) {
	t.Helper()
	ctx := context.Background()
	sent, err := h.reset.SendPasswordResetCode(ctx, PasswordResetSendInput{UserID: userID, Method: method, ClientIP: "203.0.113.7"})
	if err != nil {
		t.Fatalf("send reset code: %v", err)
	}
	ticket, err := h.reset.VerifyPasswordResetCode(ctx, PasswordResetVerifyInput{UserID: userID, Method: method, Code: h.sender.last(t).Code})
	if err != nil {
		t.Fatalf("verify reset code: %v", err)
	}
	return ticket, sent.CodeID
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t, []domain.User{activeUser("u1", "13800138000", "")})
	seedTokens(t, h, "u1", 2)
	ctx := context.Background()

	ticket, codeID := openResetTicket(t, h, "u1", "phone")
	if h.codes.get(codeID).Status != domain.CodeStatusFirstVerified {
		t.Fatal("expected code first verified after verify step")
	}
	if msg := h.sender.last(t); msg.Purpose != domain.PurposePasswordReset || msg.TemplateID != "SMS_RESET" {
		t.Fatalf("unexpected reset message %+v", msg)
	}

	if err := h.reset.ResetPassword(ctx, ResetPasswordInput{Token: ticket.Token, NewPassword: newPassword}); err != nil {
		t.Fatalf("reset: %v", err)
	}

	user, _ := h.users.GetByID(ctx, "u1")
	if user.PasswordHash != "hashed:"+newPassword || user.LastPasswordChange == nil {
		t.Fatalf("expected password updated, got %+v", user)
	}
	if got := h.tokens.active("u1", h.clock.Now()); got != 0 {
		t.Fatalf("expected every token revoked, %d still active", got)
	}
	if h.codes.get(codeID).Status != domain.CodeStatusConsumed {
		t.Fatal("expected reset code consumed")
	}
	if len(h.sessions.rows) != 0 {
		t.Fatal("expected reset session deleted")
	}
	if h.events.count(domain.EventPasswordReset) != 1 {
		t.Fatal("expected password reset event")
	}

	if err := h.reset.ResetPassword(ctx, ResetPasswordInput{Token: ticket.Token, NewPassword: strongPassword}); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ticket to be single use, got %v", err)
	}
}

func TestPasswordResetRejectsWeakPassword(t *testing.T) {
	h := newHarness(t, []domain.User{activeUser("u1", "", "user@example.com")})
	ticket, codeID := openResetTicket(t, h, "u1", "email")

	err := h.reset.ResetPassword(context.Background(), ResetPasswordInput{Token: ticket.Token, NewPassword: "short"})
	if !errors.Is(err, ErrPasswordInvalid) {
		t.Fatalf("expected password invalid, got %v", err)
	}
	var vErr *security.PasswordValidationError
	if !errors.As(err, &vErr) || vErr.Code != "min_length" {
		t.Fatalf("expected wrapped validation detail, got %v", err)
	}
	if h.codes.get(codeID).Status != domain.CodeStatusFirstVerified {
		t.Fatal("rejected reset must not consume the code")
	}
}

func TestPasswordResetRollsBackWhenCodeAlreadyUsed(t *testing.T) {
	h := newHarness(t, []domain.User{activeUser("u1", "13800138000", "")})
	seedTokens(t, h, "u1", 1)
	ctx := context.Background()
	ticket, codeID := openResetTicket(t, h, "u1", "phone")

	// consume behind the flow's back between the status check and the commit
	h.users.mu.Lock()
	u := h.users.rows["u1"]
	h.users.mu.Unlock()
	uow := &memoryUnitOfWork{users: h.users, tokens: h.tokens, codes: h.codes}
	h.reset.uow = racingUnitOfWork{inner: uow, race: func() {
		_ = h.codes.Transition(ctx, domain.ChannelSMS, codeID, []domain.CodeStatus{domain.CodeStatusFirstVerified}, domain.CodeStatusConsumed)
	}}

	err := h.reset.ResetPassword(ctx, ResetPasswordInput{Token: ticket.Token, NewPassword: newPassword})
	if !errors.Is(err, ErrCodeStateInvalid) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	after, _ := h.users.GetByID(ctx, "u1")
	if after.PasswordHash != u.PasswordHash {
		t.Fatal("expected password change rolled back")
	}
	if got := h.tokens.active("u1", h.clock.Now()); got != 2 {
		t.Fatalf("expected token revocation rolled back, %d active", got)
	}
}

type racingUnitOfWork struct {
	inner *memoryUnitOfWork
	race  func()
}

func (r racingUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.TxRepositories) error) error {
	r.race()
	return r.inner.WithinTx(ctx, fn)
}

func TestPasswordResetValidation(t *testing.T) {
	h := newHarness(t, []domain.User{activeUser("u1", "13800138000", "")})
	ctx := context.Background()

	if _, err := h.reset.SendPasswordResetCode(ctx, PasswordResetSendInput{UserID: "u1", Method: "email"}); !errors.Is(err, ErrContactMissing) {
		t.Fatalf("expected missing email, got %v", err)
	}
	if _, err := h.reset.SendPasswordResetCode(ctx, PasswordResetSendInput{UserID: "u1", Method: "carrier-pigeon"}); !errors.Is(err, ErrInvalidChannel) {
		t.Fatalf("expected invalid method, got %v", err)
	}
	if _, err := h.reset.SendPasswordResetCode(ctx, PasswordResetSendInput{UserID: "missing", Method: "phone"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
	if err := h.reset.ResetPassword(ctx, ResetPasswordInput{Token: "garbage", NewPassword: newPassword}); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected invalid session, got %v", err)
	}
}

func TestPasswordResetTicketExpires(t *testing.T) {
	h := newHarness(t, []domain.User{activeUser("u1", "13800138000", "")})
	ticket, _ := openResetTicket(t, h, "u1", "phone")
	h.clock.Advance(11 * time.Minute)

	err := h.reset.ResetPassword(context.Background(), ResetPasswordInput{Token: ticket.Token, NewPassword: newPassword})
	if !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected expired ticket, got %v", err)
	}
}
