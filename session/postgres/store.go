package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectColumns = `
	id::text, user_id, email, role, refresh_hash,
	created_at, last_refreshed_at, expires_at, revoked_at`

// Store implements session.Store, session.UserIndex and session.Sweeper on
// the sessions table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pool. The caller owns the pool's lifecycle.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*session.Record, error) {
	var (
		rec       session.Record
		hash      []byte
		revokedAt *time.Time
	)
	if err := row.Scan(
		&rec.SessionID,
		&rec.UserID,
		&rec.Email,
		&rec.Role,
		&hash,
		&rec.CreatedAt,
		&rec.LastRefreshedAt,
		&rec.ExpiresAt,
		&revokedAt,
	); err != nil {
		return nil, err
	}
	if len(hash) != len(rec.RefreshFingerprint) {
		return nil, session.ErrCorrupt
	}
	copy(rec.RefreshFingerprint[:], hash)
	if revokedAt != nil {
		rec.Revoked = true
		rec.RevokedAt = *revokedAt
	}
	return &rec, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", session.ErrUnavailable, err)
}

// Create implements session.Store.
func (s *Store) Create(ctx context.Context, p session.CreateParams) (string, error) {
	if err := session.ValidateCreate(p); err != nil {
		return "", err
	}

	for attempt := 0; attempt < 3; attempt++ {
		id := session.NewID()
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO sessions (
				id, user_id, email, role, refresh_hash,
				created_at, last_refreshed_at, expires_at, revoked_at
			) VALUES ($1, $2, $3, $4, $5, $6, $6, $7, NULL)
			ON CONFLICT (id) DO NOTHING
		`, id, p.UserID, p.Email, p.Role, p.RefreshFingerprint[:], p.CreatedAt, p.ExpiresAt)
		if err != nil {
			return "", unavailable(err)
		}
		if tag.RowsAffected() == 1 {
			return id, nil
		}
	}
	return "", errors.New("session id collision")
}

// Get implements session.Store.
func (s *Store) Get(ctx context.Context, id string) (*session.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, session.ErrNotFound
	}

	rec, err := scanRecord(s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if errors.Is(err, session.ErrCorrupt) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return rec, nil
}

// RotateRefreshToken implements session.Store. The UPDATE either wins the
// compare-and-swap or touches nothing; on a miss the row is re-read only to
// report why.
func (s *Store) RotateRefreshToken(ctx context.Context, p session.RotateParams) (*session.Record, error) {
	if _, err := uuid.Parse(p.SessionID); err != nil {
		return nil, session.ErrNotFound
	}

	rec, err := scanRecord(s.pool.QueryRow(ctx, `
		UPDATE sessions
		SET refresh_hash = $3, last_refreshed_at = $4, expires_at = $5
		WHERE id = $1
		  AND refresh_hash = $2
		  AND revoked_at IS NULL
		  AND expires_at > $4
		RETURNING `+selectColumns,
		p.SessionID, p.Current[:], p.Next[:], p.Now, p.ExpiresAt,
	))
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, session.ErrCorrupt) {
		return nil, err
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, unavailable(err)
	}

	current, err := s.Get(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	if err := session.ClassifyRotate(current, p.Current, p.Now); err != nil {
		return nil, err
	}
	// The guarded UPDATE missed but the row now matches: a concurrent
	// rotation has already consumed the presented secret.
	return nil, session.ErrFingerprintMismatch
}

// Revoke implements session.Store.
func (s *Store) Revoke(ctx context.Context, id string, now time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return session.ErrNotFound
	}

	var existed, changed bool
	err := s.pool.QueryRow(ctx, `
		WITH target AS (
			SELECT id FROM sessions WHERE id = $1
		), updated AS (
			UPDATE sessions SET revoked_at = $2
			WHERE id = $1 AND revoked_at IS NULL
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM target), EXISTS (SELECT 1 FROM updated)
	`, id, now).Scan(&existed, &changed)
	if err != nil {
		return unavailable(err)
	}
	if !existed {
		return session.ErrNotFound
	}
	return nil
}

// ListUserSessions implements session.UserIndex.
func (s *Store) ListUserSessions(ctx context.Context, userID string) ([]*session.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM sessions
		WHERE user_id = $1 AND revoked_at IS NULL
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []*session.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			if errors.Is(err, session.ErrCorrupt) {
				continue
			}
			return nil, unavailable(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// RevokeUserSessions implements session.UserIndex in one statement.
func (s *Store) RevokeUserSessions(ctx context.Context, userID string, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, now)
	if err != nil {
		return 0, unavailable(err)
	}
	return int(tag.RowsAffected()), nil
}

// Sweep implements session.Sweeper.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, unavailable(err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping reports round-trip latency to Postgres.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.pool.Ping(ctx); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}
