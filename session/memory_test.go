package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/session/sessiontest"
)

func TestMemoryStoreContract(t *testing.T) {
	sessiontest.Run(t, func(t *testing.T) session.Store {
		return session.NewMemoryStore()
	})
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	store := session.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Create(ctx, session.CreateParams{
		UserID:    "u1",
		CreatedAt: sessiontest.Base,
		ExpiresAt: sessiontest.Base.Add(time.Hour),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatal("cancelled create must not insert")
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()
	id, err := store.Create(ctx, session.CreateParams{
		UserID:    "u1",
		CreatedAt: sessiontest.Base,
		ExpiresAt: sessiontest.Base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	rec.Revoked = true

	again, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Revoked {
		t.Fatal("mutating a returned record must not affect the store")
	}
}
