package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/domain"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestSendLedger_ReserveBlocksAtCapacity(t *testing.T) {
	client, _ := newTestRedis(t)
	ledger := NewSendLedgerRepository(client, "ledger")
	ctx := context.Background()

	now := time.Now()
	slots := []port.LedgerSlot{
		{Key: "rule-ip:ip:1.2.3.4", Window: time.Hour, MaxCount: 10},
		{Key: "rule-phone:target:13800138000", Window: time.Minute, MaxCount: 2},
	}

	for i, member := range []string{"a", "b"} {
		verdict, err := ledger.Reserve(ctx, slots, member, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Reserve returned error: %v", err)
		}
		if !verdict.Allowed {
			t.Fatalf("expected send %d to be allowed", i+1)
		}
	}

	verdict, err := ledger.Reserve(ctx, slots, "c", now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if verdict.Allowed {
		t.Fatal("expected third send to be blocked")
	}
	if verdict.Blocked != 1 {
		t.Fatalf("expected second slot to block, got %d", verdict.Blocked)
	}
	if verdict.Oldest.UnixMilli() != now.UnixMilli() {
		t.Fatalf("expected oldest %v, got %v", now, verdict.Oldest)
	}

	// a blocked reservation must not leave a partial entry in the first slot
	count, _, err := ledger.Count(ctx, slots[0].Key, time.Hour, now.Add(3*time.Second))
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries in ip slot, got %d", count)
	}
}

func TestSendLedger_WindowSlides(t *testing.T) {
	client, _ := newTestRedis(t)
	ledger := NewSendLedgerRepository(client, "ledger")
	ctx := context.Background()

	now := time.Now()
	slots := []port.LedgerSlot{{Key: "rule:target:x", Window: time.Minute, MaxCount: 1}}

	if v, err := ledger.Reserve(ctx, slots, "first", now); err != nil || !v.Allowed {
		t.Fatalf("expected first reservation, got %+v err=%v", v, err)
	}
	if v, _ := ledger.Reserve(ctx, slots, "second", now.Add(30*time.Second)); v.Allowed {
		t.Fatal("expected reservation inside window to be blocked")
	}
	if v, err := ledger.Reserve(ctx, slots, "third", now.Add(61*time.Second)); err != nil || !v.Allowed {
		t.Fatalf("expected reservation after window to pass, got %+v err=%v", v, err)
	}
}

func TestSendLedger_CountAndRelease(t *testing.T) {
	client, server := newTestRedis(t)
	ledger := NewSendLedgerRepository(client, "ledger")
	ctx := context.Background()

	now := time.Now()
	slots := []port.LedgerSlot{{Key: "rule:global", Window: time.Minute, MaxCount: 5}}

	if err := ledger.Record(ctx, slots, "m1", now.Add(-10*time.Second)); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := ledger.Record(ctx, slots, "m2", now); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	count, oldest, err := ledger.Count(ctx, "rule:global", time.Minute, now)
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 sends, got %d", count)
	}
	if oldest.UnixMilli() != now.Add(-10*time.Second).UnixMilli() {
		t.Fatalf("unexpected oldest %v", oldest)
	}

	if ttl := server.TTL("ledger:rule:global"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected ttl within (0, 1m], got %v", ttl)
	}

	if err := ledger.Release(ctx, []string{"rule:global"}, "m2"); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	count, _, err = ledger.Count(ctx, "rule:global", time.Minute, now)
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 send after release, got %d", count)
	}
}

func TestSendLedger_EmptySlotsAllowed(t *testing.T) {
	client, _ := newTestRedis(t)
	ledger := NewSendLedgerRepository(client, "")

	verdict, err := ledger.Reserve(context.Background(), nil, "m", time.Now())
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if !verdict.Allowed {
		t.Fatal("expected empty slot set to allow")
	}
}

func TestVerificationSessionRepository_RoundTrip(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewVerificationSessionRepository(client, "vs")
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	session := domain.VerificationSession{
		ID:        "sess-1",
		UserID:    "user-1",
		Purpose:   domain.PurposePasswordReset,
		Step:      domain.StepCodeVerified,
		Channel:   domain.ChannelSMS,
		Target:    "13800138000",
		CodeID:    "code-1",
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	}

	if err := repo.Save(ctx, session); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if ttl := server.TTL("vs:sess-1"); ttl <= 0 || ttl > 10*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	got, err := repo.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.UserID != "user-1" || got.Step != domain.StepCodeVerified || got.Channel != domain.ChannelSMS {
		t.Fatalf("unexpected session %+v", got)
	}
	if !got.ExpiresAt.Equal(session.ExpiresAt) {
		t.Fatalf("expected expiry %v, got %v", session.ExpiresAt, got.ExpiresAt)
	}

	if err := repo.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := repo.Get(ctx, "sess-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestVerificationSessionRepository_RejectsExpired(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewVerificationSessionRepository(client, "vs")

	err := repo.Save(context.Background(), domain.VerificationSession{ID: "x", ExpiresAt: time.Now().Add(-time.Second)})
	if err == nil {
		t.Fatal("expected expired session to be rejected")
	}
}

func TestProofClaimRepository_ClaimOnce(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewProofClaimRepository(client, "claim")
	ctx := context.Background()

	ok, err := repo.Claim(ctx, "log-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first claim to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = repo.Claim(ctx, "log-1", time.Minute)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if ok {
		t.Fatal("expected second claim to fail")
	}

	server.FastForward(2 * time.Minute)
	ok, err = repo.Claim(ctx, "log-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected claim after expiry to succeed, ok=%v err=%v", ok, err)
	}
}

func TestLocalChallengeRepository_TakeDeletes(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewLocalChallengeRepository(client, "ch")
	ctx := context.Background()

	if err := repo.Save(ctx, "c1", "hash", time.Minute); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := repo.Take(ctx, "c1")
	if err != nil {
		t.Fatalf("Take returned error: %v", err)
	}
	if got != "hash" {
		t.Fatalf("expected hash, got %s", got)
	}
	if server.Exists("ch:c1") {
		t.Fatal("expected challenge to be deleted")
	}
	if _, err := repo.Take(ctx, "c1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
