//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/session/sessiontest"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests run with -tags integration and GOSESSION_DATABASE_URL set
// to a disposable database. The sessions table is truncated between subtests.

func mustPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("GOSESSION_DATABASE_URL")
	if dsn == "" {
		t.Skip("GOSESSION_DATABASE_URL is not set; skipping Postgres integration test")
	}
	if err := Migrate(dsn, "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("postgres unreachable: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresStoreContract(t *testing.T) {
	pool := mustPool(t)
	sessiontest.Run(t, func(t *testing.T) session.Store {
		if _, err := pool.Exec(context.Background(), `TRUNCATE sessions`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return NewStore(pool)
	})
}

func TestPostgresStoreRejectsNonUUIDIDs(t *testing.T) {
	store := NewStore(mustPool(t))
	ctx := context.Background()

	if _, err := store.Get(ctx, "not-a-uuid"); err != session.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Revoke(ctx, "not-a-uuid", time.Now()); err != session.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStorePing(t *testing.T) {
	store := NewStore(mustPool(t))
	if _, err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
