package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no record exists for a session id.
	ErrNotFound = errors.New("session not found")
	// ErrRevoked is returned by rotation against a revoked session.
	ErrRevoked = errors.New("session revoked")
	// ErrExpired is returned by rotation against a session past its horizon.
	ErrExpired = errors.New("session expired")
	// ErrFingerprintMismatch is returned when the presented refresh secret is
	// not the current one.
	ErrFingerprintMismatch = errors.New("refresh fingerprint mismatch")
	// ErrUnavailable wraps every infrastructure failure.
	ErrUnavailable = errors.New("session store unavailable")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")
	// ErrFieldTooLong is returned when a user id, email or role exceeds
	// MaxFieldLen bytes.
	ErrFieldTooLong = errors.New("session field too long")
)

// MaxFieldLen is the longest user id, email or role a record can carry.
// Every store enforces it so records stay portable between backends.
const MaxFieldLen = 255

// CreateParams describes a new session. The store allocates the id.
type CreateParams struct {
	UserID             string
	Email              string
	Role               string
	RefreshFingerprint [32]byte
	CreatedAt          time.Time
	ExpiresAt          time.Time
}

// RotateParams describes a refresh-token rotation. Next may equal Current
// when the caller keeps the secret and only extends the horizon.
type RotateParams struct {
	SessionID string
	Current   [32]byte
	Next      [32]byte
	Now       time.Time
	ExpiresAt time.Time
}

// Store is the durable sessionID → Record mapping.
type Store interface {
	// Create inserts a fresh, non-revoked record and returns its id. It never
	// overwrites an existing record.
	Create(ctx context.Context, p CreateParams) (string, error)
	// Get returns the record for id or ErrNotFound. Revoked and expired
	// records that are still retained are returned as-is.
	Get(ctx context.Context, id string) (*Record, error)
	// RotateRefreshToken atomically replaces p.Current with p.Next, bumps
	// LastRefreshedAt to p.Now and moves the horizon to p.ExpiresAt.
	RotateRefreshToken(ctx context.Context, p RotateParams) (*Record, error)
	// Revoke marks the record revoked. Revoking a revoked record is a no-op.
	Revoke(ctx context.Context, id string, now time.Time) error
}

// UserIndex is implemented by stores that can enumerate sessions per user.
type UserIndex interface {
	// ListUserSessions returns the user's retained, non-revoked records.
	ListUserSessions(ctx context.Context, userID string) ([]*Record, error)
	// RevokeUserSessions revokes every session of the user and returns how
	// many changed state.
	RevokeUserSessions(ctx context.Context, userID string, now time.Time) (int, error)
}

// Sweeper is implemented by stores that retain dead records until swept.
type Sweeper interface {
	// Sweep deletes records whose horizon is at or before now and returns
	// how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// ClassifyRotate maps the state of rec at now onto the rotation outcome for
// a presented fingerprint. It is shared by stores that evaluate rotation
// outside the datastore.
func ClassifyRotate(rec *Record, presented [32]byte, now time.Time) error {
	switch rec.State(now) {
	case StateRevoked:
		return ErrRevoked
	case StateExpired:
		return ErrExpired
	}
	if !refresh.Equal(rec.RefreshFingerprint, presented) {
		return ErrFingerprintMismatch
	}
	return nil
}

// NewID allocates a random session id. Ids are UUIDv4 strings so they embed
// losslessly into refresh tokens.
func NewID() string {
	return uuid.NewString()
}

// ValidateCreate checks the parameters every Store.Create must reject.
func ValidateCreate(p CreateParams) error {
	if p.UserID == "" {
		return errors.New("session requires a user id")
	}
	if !p.ExpiresAt.After(p.CreatedAt) {
		return errors.New("session horizon must be after creation")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"userID", p.UserID},
		{"email", p.Email},
		{"role", p.Role},
	} {
		if len(field.value) > MaxFieldLen {
			return fmt.Errorf("%w: %s", ErrFieldTooLong, field.name)
		}
	}
	return nil
}
