package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
)

func TestContactChangeFlow(t *testing.T) {
	h := newHarness(t, []domain.User{activeUser("u1", "13800138000", "")})
	ctx := context.Background()

	state, err := h.contacts.StartContactChange(ctx, ContactChangeStartInput{UserID: "u1", Method: "phone"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Step != domain.StepAwaitCurrent || state.Code == nil || state.Code.MaskedTarget != "138****8000" {
		t.Fatalf("unexpected start state %+v", state)
	}
	oldCodeID := state.Code.CodeID

	if _, err := h.contacts.SendNewContactCode(ctx, ContactChangeSendInput{UserID: "u1", Method: "phone", Token: state.Token, NewIdentifier: "13900139000"}); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected new contact step to require current verification, got %v", err)
	}

	state, err = h.contacts.VerifyCurrentContact(ctx, ContactChangeStepInput{UserID: "u1", Method: "phone", Token: state.Token, Code: h.sender.last(t).Code})
	if err != nil {
		t.Fatalf("verify current: %v", err)
	}
	if state.Step != domain.StepCurrentVerified {
		t.Fatalf("unexpected step %s", state.Step)
	}

	state, err = h.contacts.SendNewContactCode(ctx, ContactChangeSendInput{UserID: "u1", Method: "phone", Token: state.Token, NewIdentifier: "13900139000"})
	if err != nil {
		t.Fatalf("send new: %v", err)
	}
	newCodeID := state.Code.CodeID
	if msg := h.sender.last(t); msg.Target != "13900139000" || msg.Purpose != domain.PurposeChangePhone {
		t.Fatalf("unexpected new contact message %+v", msg)
	}

	if err := h.contacts.ConfirmNewContact(ctx, ContactChangeStepInput{UserID: "u1", Method: "phone", Token: state.Token, Code: h.sender.last(t).Code}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	user, _ := h.users.GetByID(ctx, "u1")
	if deref(user.Phone) != "13900139000" {
		t.Fatalf("expected phone changed, got %q", deref(user.Phone))
	}
	for _, id := range []string{oldCodeID, newCodeID} {
		if h.codes.get(id).Status != domain.CodeStatusConsumed {
			t.Fatalf("expected code %s consumed", id)
		}
	}
	if len(h.sessions.rows) != 0 || h.events.count(domain.EventContactChanged) != 1 {
		t.Fatal("expected session cleared and event published")
	}
}

func TestContactChangeWithoutCurrentContactSkipsFirstStep(t *testing.T) {
	h := newHarness(t, []domain.User{activeUser("u1", "13800138000", "")})
	ctx := context.Background()

	state, err := h.contacts.StartContactChange(ctx, ContactChangeStartInput{UserID: "u1", Method: "email"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Step != domain.StepCurrentVerified || state.Code != nil {
		t.Fatalf("expected direct new-contact step, got %+v", state)
	}

	state, err = h.contacts.SendNewContactCode(ctx, ContactChangeSendInput{UserID: "u1", Method: "email", Token: state.Token, NewIdentifier: "New@Example.com"})
	if err != nil {
		t.Fatalf("send new: %v", err)
	}
	if err := h.contacts.ConfirmNewContact(ctx, ContactChangeStepInput{UserID: "u1", Method: "email", Token: state.Token, Code: h.sender.last(t).Code}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	user, _ := h.users.GetByID(ctx, "u1")
	if deref(user.Email) != "new@example.com" {
		t.Fatalf("expected email bound, got %q", deref(user.Email))
	}
}

func TestContactChangeRejectsTakenAndUnchangedContacts(t *testing.T) {
	h := newHarness(t, []domain.User{
		activeUser("u1", "", "me@example.com"),
		activeUser("u2", "", "taken@example.com"),
	})
	ctx := context.Background()

	state, err := h.contacts.StartContactChange(ctx, ContactChangeStartInput{UserID: "u1", Method: "email"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	state, err = h.contacts.VerifyCurrentContact(ctx, ContactChangeStepInput{UserID: "u1", Method: "email", Token: state.Token, Code: h.sender.last(t).Code})
	if err != nil {
		t.Fatalf("verify current: %v", err)
	}

	send := ContactChangeSendInput{UserID: "u1", Method: "email", Token: state.Token}
	send.NewIdentifier = "taken@example.com"
	if _, err := h.contacts.SendNewContactCode(ctx, send); !errors.Is(err, ErrContactInUse) {
		t.Fatalf("expected contact in use, got %v", err)
	}
	send.NewIdentifier = "ME@example.com"
	if _, err := h.contacts.SendNewContactCode(ctx, send); !errors.Is(err, ErrContactUnchanged) {
		t.Fatalf("expected unchanged, got %v", err)
	}
	send.NewIdentifier = "13900139000"
	if _, err := h.contacts.SendNewContactCode(ctx, send); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected channel mismatch rejected, got %v", err)
	}
}

func TestContactChangeTokenBoundToUser(t *testing.T) {
	h := newHarness(t, []domain.User{
		activeUser("u1", "13800138000", ""),
		activeUser("u2", "13700137000", ""),
	})
	ctx := context.Background()

	state, err := h.contacts.StartContactChange(ctx, ContactChangeStartInput{UserID: "u1", Method: "phone"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = h.contacts.VerifyCurrentContact(ctx, ContactChangeStepInput{UserID: "u2", Method: "phone", Token: state.Token, Code: h.sender.last(t).Code})
	if !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected another user's token rejected, got %v", err)
	}
	_, err = h.contacts.VerifyCurrentContact(ctx, ContactChangeStepInput{UserID: "u1", Method: "email", Token: state.Token, Code: h.sender.last(t).Code})
	if !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected purpose mismatch rejected, got %v", err)
	}
}

func TestContactChangeRejectsStaleStepToken(t *testing.T) {
	h := newHarness(t, []domain.User{activeUser("u1", "13800138000", "")})
	ctx := context.Background()

	started, err := h.contacts.StartContactChange(ctx, ContactChangeStartInput{UserID: "u1", Method: "phone"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	verified, err := h.contacts.VerifyCurrentContact(ctx, ContactChangeStepInput{UserID: "u1", Method: "phone", Token: started.Token, Code: h.sender.last(t).Code})
	if err != nil {
		t.Fatalf("verify current: %v", err)
	}

	_, err = h.contacts.SendNewContactCode(ctx, ContactChangeSendInput{UserID: "u1", Method: "phone", Token: started.Token, NewIdentifier: "13900139000"})
	if !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected start token rejected once the session advanced, got %v", err)
	}

	sent, err := h.contacts.SendNewContactCode(ctx, ContactChangeSendInput{UserID: "u1", Method: "phone", Token: verified.Token, NewIdentifier: "13900139000"})
	if err != nil {
		t.Fatalf("send new: %v", err)
	}
	err = h.contacts.ConfirmNewContact(ctx, ContactChangeStepInput{UserID: "u1", Method: "phone", Token: verified.Token, Code: h.sender.last(t).Code})
	if !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected current_verified token rejected at confirm, got %v", err)
	}
	if err := h.contacts.ConfirmNewContact(ctx, ContactChangeStepInput{UserID: "u1", Method: "phone", Token: sent.Token, Code: h.sender.last(t).Code}); err != nil {
		t.Fatalf("confirm with current token: %v", err)
	}
}
