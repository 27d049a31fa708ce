package refresh

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	// SessionIDSize is the raw size of the embedded session id.
	SessionIDSize = 16
	// SecretSize is the raw size of the per-rotation secret.
	SecretSize = 32

	tokenRawSize = SessionIDSize + SecretSize
)

// ErrMalformed is returned for any token that does not decode to the expected layout.
var ErrMalformed = errors.New("malformed refresh token")

// Secret is the random half of a refresh token.
type Secret [SecretSize]byte

// NewSecret draws a fresh secret from crypto/rand.
func NewSecret() (Secret, error) {
	var s Secret
	if _, err := rand.Read(s[:]); err != nil {
		return s, fmt.Errorf("refresh secret: %w", err)
	}
	return s, nil
}

// Encode packs sessionID and secret into an opaque token. sessionID must be
// a UUID string.
func Encode(sessionID string, secret Secret) (string, error) {
	sid, err := uuid.Parse(sessionID)
	if err != nil {
		return "", fmt.Errorf("%w: session id: %v", ErrMalformed, err)
	}

	var raw [tokenRawSize]byte
	copy(raw[:SessionIDSize], sid[:])
	copy(raw[SessionIDSize:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Decode splits a token into its session id and secret.
func Decode(token string) (string, Secret, error) {
	var secret Secret

	if base64.RawURLEncoding.DecodedLen(len(token)) != tokenRawSize {
		return "", secret, ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != tokenRawSize {
		return "", secret, ErrMalformed
	}

	var sid uuid.UUID
	copy(sid[:], raw[:SessionIDSize])
	copy(secret[:], raw[SessionIDSize:])

	return sid.String(), secret, nil
}
