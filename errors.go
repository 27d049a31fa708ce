package goSession

import "errors"

var (
	// ErrUnauthorized is returned for every authentication failure: bad,
	// expired or forged tokens, dead sessions and stale refresh tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStoreUnavailable wraps session store infrastructure failures. It is
	// never returned for a token that is merely invalid.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrInvalidIdentity is returned when issuance is asked for an identity
	// no session can carry unchanged.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrRefreshRateLimited is returned when refresh throttling is enabled and
	// a session exhausts its budget.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrUserIndexUnsupported is returned by per-user operations when the
	// configured store cannot enumerate sessions by user.
	ErrUserIndexUnsupported = errors.New("session store does not index by user")
	// ErrSweepUnsupported is returned by SweepExpired when the configured store
	// cannot sweep.
	ErrSweepUnsupported = errors.New("session store does not support sweeping")
	// ErrTokenIssue wraps signing or entropy failures during issuance.
	ErrTokenIssue = errors.New("token issuance failed")
)
