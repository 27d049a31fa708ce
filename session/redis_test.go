package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/session/sessiontest"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*session.RedisStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return session.NewRedisStore(rdb, "gs"), mr, rdb
}

func TestRedisStoreContract(t *testing.T) {
	sessiontest.Run(t, func(t *testing.T) session.Store {
		store, _, _ := newRedisStoreTest(t)
		return store
	})
}

func TestRedisStoreKeysCarryHorizonTTL(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t)
	ctx := context.Background()

	id, err := store.Create(ctx, session.CreateParams{
		UserID:    "u1",
		CreatedAt: sessiontest.Base,
		ExpiresAt: sessiontest.Base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if ttl := mr.TTL("gs:s:" + id); ttl != time.Hour {
		t.Fatalf("expected session TTL of 1h, got %v", ttl)
	}
	if ok, _ := mr.SIsMember("gs:u:u1", id); !ok {
		t.Fatal("expected session id in user index")
	}

	now := sessiontest.Base.Add(30 * time.Minute)
	if _, err := store.RotateRefreshToken(ctx, session.RotateParams{
		SessionID: id,
		Now:       now,
		ExpiresAt: now.Add(2 * time.Hour),
	}); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if ttl := mr.TTL("gs:s:" + id); ttl != 2*time.Hour {
		t.Fatalf("expected rotation to reset TTL to 2h, got %v", ttl)
	}

	mr.FastForward(3 * time.Hour)
	if _, err := store.Get(ctx, id); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected evicted session to be not found, got %v", err)
	}
}

func TestRedisStoreRevokeKeepsTombstoneTTL(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t)
	ctx := context.Background()

	id, err := store.Create(ctx, session.CreateParams{
		UserID:    "u1",
		CreatedAt: sessiontest.Base,
		ExpiresAt: sessiontest.Base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Revoke(ctx, id, sessiontest.Base); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	if ttl := mr.TTL("gs:s:" + id); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected tombstone to keep its TTL, got %v", ttl)
	}
	if ok, _ := mr.SIsMember("gs:u:u1", id); ok {
		t.Fatal("expected revoked session to leave the user index")
	}
}

func TestRedisStoreListPrunesEvictedIndexEntries(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t)
	ctx := context.Background()

	short, err := store.Create(ctx, session.CreateParams{
		UserID:    "u1",
		CreatedAt: sessiontest.Base,
		ExpiresAt: sessiontest.Base.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	long, err := store.Create(ctx, session.CreateParams{
		UserID:    "u1",
		CreatedAt: sessiontest.Base,
		ExpiresAt: sessiontest.Base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	recs, err := store.ListUserSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 || recs[0].SessionID != long {
		t.Fatalf("expected only the long session, got %d records", len(recs))
	}
	if ok, _ := mr.SIsMember("gs:u:u1", short); ok {
		t.Fatal("expected evicted session to be pruned from the index")
	}
}

func TestRedisStoreCorruptRecord(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t)
	ctx := context.Background()
	id := session.NewID()
	if err := mr.Set("gs:s:"+id, "garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := store.Get(ctx, id); !errors.Is(err, session.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt from get, got %v", err)
	}
	now := sessiontest.Base
	if _, err := store.RotateRefreshToken(ctx, session.RotateParams{SessionID: id, Now: now, ExpiresAt: now.Add(time.Hour)}); !errors.Is(err, session.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt from rotate, got %v", err)
	}
	if err := store.Revoke(ctx, id, now); !errors.Is(err, session.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt from revoke, got %v", err)
	}
}

func TestRedisStoreRevokeUserSessionsSkipsCorrupt(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t)
	ctx := context.Background()
	now := sessiontest.Base

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.Create(ctx, session.CreateParams{
			UserID:    "u1",
			Email:     "u1@example.com",
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, id)
	}
	if err := mr.Set("gs:s:"+ids[1], "garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := store.RevokeUserSessions(ctx, "u1", now)
	if err != nil {
		t.Fatalf("revoke user sessions: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked, got %d", n)
	}
	for _, id := range []string{ids[0], ids[2]} {
		rec, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if !rec.Revoked {
			t.Fatalf("expected %s revoked", id)
		}
	}
	if mr.Exists("gs:s:" + ids[1]) {
		t.Fatal("expected corrupt record deleted")
	}
	if ok, _ := mr.SIsMember("gs:u:u1", ids[1]); ok {
		t.Fatal("expected corrupt record removed from user index")
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := store.Get(ctx, session.NewID())
	if !errors.Is(err, session.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if errors.Is(err, session.ErrNotFound) {
		t.Fatal("outage must never look like not found")
	}
	if _, err := store.Ping(ctx); !errors.Is(err, session.ErrUnavailable) {
		t.Fatalf("expected ping failure, got %v", err)
	}
}
