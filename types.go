package goSession

import "time"

// Identity is a user whose credentials were verified by the caller. Fields
// round-trip into Claims byte for byte; UserID must not carry surrounding
// whitespace and each field is limited to session.MaxFieldLen bytes.
type Identity struct {
	UserID string
	Email  string
	// Role defaults to Config.Session.DefaultRole when empty. It is carried
	// in claims and never enforced here.
	Role string
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is returned by issuance and refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
