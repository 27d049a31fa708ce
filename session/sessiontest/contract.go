// Package sessiontest holds the behavioural contract every session.Store
// implementation must satisfy. Store packages call Run from their own tests.
package sessiontest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) session.Store

// Base is the fixed instant contract tests are written against. It sits on a
// millisecond boundary so every backend round-trips it exactly.
var Base = time.UnixMilli(1_700_000_000_000)

const horizon = 7 * 24 * time.Hour

func fp(b byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func create(t *testing.T, store session.Store, userID string, fingerprint [32]byte) string {
	t.Helper()
	id, err := store.Create(context.Background(), session.CreateParams{
		UserID:             userID,
		Email:              userID + "@example.com",
		Role:               "user",
		RefreshFingerprint: fingerprint,
		CreatedAt:          Base,
		ExpiresAt:          Base.Add(horizon),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty session id")
	}
	return id
}

// Run executes the full contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("CreateRejectsInvalid", func(t *testing.T) { testCreateRejectsInvalid(t, newStore(t)) })
	t.Run("RotateSuccess", func(t *testing.T) { testRotateSuccess(t, newStore(t)) })
	t.Run("RotateOutcomes", func(t *testing.T) { testRotateOutcomes(t, newStore(t)) })
	t.Run("RevokeIdempotent", func(t *testing.T) { testRevokeIdempotent(t, newStore(t)) })
	t.Run("RotateConcurrencySingleWinner", func(t *testing.T) { testRotateConcurrency(t, newStore(t)) })
	t.Run("DistinctIDs", func(t *testing.T) { testDistinctIDs(t, newStore(t)) })
	t.Run("UserIndex", func(t *testing.T) { testUserIndex(t, newStore(t)) })
	t.Run("Sweep", func(t *testing.T) { testSweep(t, newStore(t)) })
}

func testCreateGet(t *testing.T, store session.Store) {
	id := create(t, store, "u1", fp(1))

	rec, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.SessionID != id || rec.UserID != "u1" || rec.Email != "u1@example.com" || rec.Role != "user" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.RefreshFingerprint != fp(1) {
		t.Fatal("fingerprint mismatch")
	}
	if !rec.CreatedAt.Equal(Base) || !rec.LastRefreshedAt.Equal(Base) || !rec.ExpiresAt.Equal(Base.Add(horizon)) {
		t.Fatalf("unexpected timestamps: %+v", rec)
	}
	if rec.Revoked {
		t.Fatal("new record must not be revoked")
	}
	if !rec.Active(Base.Add(time.Minute)) {
		t.Fatal("new record must be active")
	}
}

func testGetMissing(t *testing.T, store session.Store) {
	_, err := store.Get(context.Background(), session.NewID())
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, session.ErrUnavailable) {
		t.Fatal("not found must not be reported as unavailable")
	}
}

func testCreateRejectsInvalid(t *testing.T, store session.Store) {
	ctx := context.Background()
	if _, err := store.Create(ctx, session.CreateParams{CreatedAt: Base, ExpiresAt: Base.Add(horizon)}); err == nil {
		t.Fatal("expected empty user id to be rejected")
	}
	if _, err := store.Create(ctx, session.CreateParams{UserID: "u1", CreatedAt: Base, ExpiresAt: Base}); err == nil {
		t.Fatal("expected non-positive horizon to be rejected")
	}

	long := strings.Repeat("a", session.MaxFieldLen-len("@example.com")+1) + "@example.com"
	_, err := store.Create(ctx, session.CreateParams{UserID: "u1", Email: long, CreatedAt: Base, ExpiresAt: Base.Add(horizon)})
	if !errors.Is(err, session.ErrFieldTooLong) {
		t.Fatalf("expected ErrFieldTooLong for %d byte email, got %v", len(long), err)
	}
	if errors.Is(err, session.ErrUnavailable) {
		t.Fatal("field length must not be reported as unavailable")
	}
	atLimit := strings.Repeat("r", session.MaxFieldLen)
	if _, err := store.Create(ctx, session.CreateParams{UserID: "u1", Role: atLimit, CreatedAt: Base, ExpiresAt: Base.Add(horizon)}); err != nil {
		t.Fatalf("expected %d byte role to be accepted: %v", session.MaxFieldLen, err)
	}
}

func testRotateSuccess(t *testing.T, store session.Store) {
	ctx := context.Background()
	id := create(t, store, "u1", fp(1))

	now := Base.Add(time.Hour)
	rec, err := store.RotateRefreshToken(ctx, session.RotateParams{
		SessionID: id,
		Current:   fp(1),
		Next:      fp(2),
		Now:       now,
		ExpiresAt: now.Add(horizon),
	})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rec.SessionID != id || rec.RefreshFingerprint != fp(2) {
		t.Fatalf("unexpected rotated record: %+v", rec)
	}
	if !rec.LastRefreshedAt.Equal(now) || !rec.ExpiresAt.Equal(now.Add(horizon)) {
		t.Fatalf("rotation must bump timestamps: %+v", rec)
	}
	if !rec.CreatedAt.Equal(Base) {
		t.Fatal("rotation must not touch CreatedAt")
	}

	stored, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get after rotate: %v", err)
	}
	if stored.RefreshFingerprint != fp(2) || stored.UserID != "u1" || stored.Email != "u1@example.com" {
		t.Fatalf("rotation not persisted: %+v", stored)
	}
}

func testRotateOutcomes(t *testing.T, store session.Store) {
	ctx := context.Background()
	id := create(t, store, "u1", fp(1))
	now := Base.Add(time.Minute)

	_, err := store.RotateRefreshToken(ctx, session.RotateParams{SessionID: session.NewID(), Current: fp(1), Next: fp(2), Now: now, ExpiresAt: now.Add(horizon)})
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = store.RotateRefreshToken(ctx, session.RotateParams{SessionID: id, Current: fp(9), Next: fp(2), Now: now, ExpiresAt: now.Add(horizon)})
	if !errors.Is(err, session.ErrFingerprintMismatch) {
		t.Fatalf("expected ErrFingerprintMismatch, got %v", err)
	}

	late := Base.Add(horizon)
	_, err = store.RotateRefreshToken(ctx, session.RotateParams{SessionID: id, Current: fp(1), Next: fp(2), Now: late, ExpiresAt: late.Add(horizon)})
	if !errors.Is(err, session.ErrExpired) {
		t.Fatalf("expected ErrExpired at the horizon, got %v", err)
	}

	if err := store.Revoke(ctx, id, now); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, err = store.RotateRefreshToken(ctx, session.RotateParams{SessionID: id, Current: fp(1), Next: fp(2), Now: now, ExpiresAt: now.Add(horizon)})
	if !errors.Is(err, session.ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}

	rec, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.RefreshFingerprint != fp(1) {
		t.Fatal("failed rotations must not change the fingerprint")
	}
}

func testRevokeIdempotent(t *testing.T, store session.Store) {
	ctx := context.Background()
	id := create(t, store, "u1", fp(1))
	now := Base.Add(time.Minute)

	if err := store.Revoke(ctx, id, now); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	if err := store.Revoke(ctx, id, now.Add(time.Minute)); err != nil {
		t.Fatalf("second revoke: %v", err)
	}

	rec, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get revoked: %v", err)
	}
	if !rec.Revoked || rec.State(now) != session.StateRevoked {
		t.Fatalf("expected revoked record, got %+v", rec)
	}
	if !rec.RevokedAt.Equal(now) {
		t.Fatalf("second revoke must not move RevokedAt: %v", rec.RevokedAt)
	}

	if err := store.Revoke(ctx, session.NewID(), now); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func testRotateConcurrency(t *testing.T, store session.Store) {
	ctx := context.Background()
	id := create(t, store, "u1", fp(1))
	now := Base.Add(time.Minute)

	const workers = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		mismatches int
		unexpected []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := store.RotateRefreshToken(ctx, session.RotateParams{
				SessionID: id,
				Current:   fp(1),
				Next:      fp(byte(10 + i)),
				Now:       now,
				ExpiresAt: now.Add(horizon),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, session.ErrFingerprintMismatch):
				mismatches++
			default:
				unexpected = append(unexpected, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if len(unexpected) > 0 {
		t.Fatalf("unexpected rotate errors: %v", unexpected)
	}
	if successes != 1 || mismatches != workers-1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d mismatches", successes, mismatches)
	}
}

func testDistinctIDs(t *testing.T, store session.Store) {
	seen := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		id := create(t, store, "u1", fp(1))
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func testUserIndex(t *testing.T, store session.Store) {
	idx, ok := store.(session.UserIndex)
	if !ok {
		t.Skip("store does not implement UserIndex")
	}
	ctx := context.Background()
	now := Base.Add(time.Minute)

	a := create(t, store, "u1", fp(1))
	b := create(t, store, "u1", fp(2))
	other := create(t, store, "u2", fp(3))

	recs, err := idx.ListUserSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 sessions for u1, got %d", len(recs))
	}
	got := map[string]bool{}
	for _, r := range recs {
		got[r.SessionID] = true
	}
	if !got[a] || !got[b] {
		t.Fatalf("unexpected sessions listed: %v", got)
	}

	if err := store.Revoke(ctx, a, now); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	n, err := idx.RevokeUserSessions(ctx, "u1", now)
	if err != nil {
		t.Fatalf("revoke user sessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 newly revoked session, got %d", n)
	}

	recs, err = idx.ListUserSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("list after revoke: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no live sessions for u1, got %d", len(recs))
	}

	rec, err := store.Get(ctx, other)
	if err != nil {
		t.Fatalf("get other user: %v", err)
	}
	if rec.Revoked {
		t.Fatal("revoking u1 must not touch u2")
	}

	n, err = idx.RevokeUserSessions(ctx, "u1", now)
	if err != nil || n != 0 {
		t.Fatalf("expected idempotent user revoke, got n=%d err=%v", n, err)
	}
}

func testSweep(t *testing.T, store session.Store) {
	sw, ok := store.(session.Sweeper)
	if !ok {
		t.Skip("store does not implement Sweeper")
	}
	ctx := context.Background()

	dead := create(t, store, "u1", fp(1))
	if _, err := store.Create(ctx, session.CreateParams{
		UserID:             "u1",
		RefreshFingerprint: fp(2),
		CreatedAt:          Base.Add(horizon),
		ExpiresAt:          Base.Add(3 * horizon),
	}); err != nil {
		t.Fatalf("create live session: %v", err)
	}

	removed, err := sw.Sweep(ctx, Base.Add(horizon+time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed < 1 {
		t.Fatalf("expected at least one swept record, got %d", removed)
	}
	if _, err := store.Get(ctx, dead); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected swept record to be gone, got %v", err)
	}
}
