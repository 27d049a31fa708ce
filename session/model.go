package session

import "time"

// State is the lifecycle position of a record at a given instant.
type State uint8

const (
	// StateActive records accept verification and refresh.
	StateActive State = iota
	// StateExpired records are past their refresh horizon. Terminal.
	StateExpired
	// StateRevoked records were invalidated explicitly. Terminal.
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Record is the server-side state of one login.
type Record struct {
	SessionID string
	UserID    string
	Email     string
	Role      string

	// RefreshFingerprint is the fingerprint of the only refresh secret
	// currently accepted for this session.
	RefreshFingerprint [32]byte

	CreatedAt       time.Time
	LastRefreshedAt time.Time
	// ExpiresAt is the refresh horizon. At or after it the session is dead.
	ExpiresAt time.Time

	Revoked   bool
	RevokedAt time.Time
}

// State reports the record's lifecycle state at now. Revocation wins over
// expiry.
func (r *Record) State(now time.Time) State {
	if r.Revoked {
		return StateRevoked
	}
	if !now.Before(r.ExpiresAt) {
		return StateExpired
	}
	return StateActive
}

// Active reports whether the record is neither revoked nor past its horizon.
func (r *Record) Active(now time.Time) bool {
	return r.State(now) == StateActive
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
