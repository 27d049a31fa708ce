package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
)

// FailureKind classifies why an authentication attempt failed. Callers only
// ever see ErrUnauthorized; the kind is recorded on audit events and
// per-kind counters.
type FailureKind uint8

const (
	FailureNone FailureKind = iota
	FailureMalformedToken
	FailureInvalidSignature
	FailureExpired
	FailureSessionRevokedOrAbsent
	FailureRefreshMismatch
)

func (k FailureKind) String() string {
	switch k {
	case FailureMalformedToken:
		return "malformed_token"
	case FailureInvalidSignature:
		return "invalid_signature"
	case FailureExpired:
		return "expired"
	case FailureSessionRevokedOrAbsent:
		return "session_revoked_or_absent"
	case FailureRefreshMismatch:
		return "refresh_mismatch"
	default:
		return ""
	}
}

func (k FailureKind) metric() (MetricID, bool) {
	switch k {
	case FailureMalformedToken:
		return MetricFailureMalformedToken, true
	case FailureInvalidSignature:
		return MetricFailureInvalidSignature, true
	case FailureExpired:
		return MetricFailureExpired, true
	case FailureSessionRevokedOrAbsent:
		return MetricFailureSessionRevokedOrAbsent, true
	case FailureRefreshMismatch:
		return MetricFailureRefreshMismatch, true
	default:
		return 0, false
	}
}

func failureFromCodec(err error) FailureKind {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return FailureExpired
	case errors.Is(err, jwt.ErrInvalidSignature):
		return FailureInvalidSignature
	default:
		return FailureMalformedToken
	}
}

func failureFromStore(err error) FailureKind {
	switch {
	case errors.Is(err, session.ErrFingerprintMismatch):
		return FailureRefreshMismatch
	case errors.Is(err, session.ErrExpired):
		return FailureExpired
	default:
		return FailureSessionRevokedOrAbsent
	}
}

// isSessionState reports whether a store error is a statement about the
// session rather than an outage. Everything else, including context errors,
// is treated as the store being unavailable.
func isSessionState(err error) bool {
	return errors.Is(err, session.ErrNotFound) ||
		errors.Is(err, session.ErrRevoked) ||
		errors.Is(err, session.ErrExpired) ||
		errors.Is(err, session.ErrFingerprintMismatch) ||
		errors.Is(err, session.ErrCorrupt)
}
