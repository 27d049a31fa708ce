package refresh

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint is the stored, one-way form of a refresh secret.
type Fingerprint = [32]byte

// Fingerprinter derives fingerprints from secrets. With no pepper it is plain
// SHA-256; with a pepper it is keyed BLAKE2b-256, so a leaked session table
// cannot be checked against guessed secrets without the pepper.
type Fingerprinter struct {
	pepper []byte
}

// NewFingerprinter returns a Fingerprinter. pepper may be empty and must not
// exceed 64 bytes.
func NewFingerprinter(pepper []byte) (*Fingerprinter, error) {
	if len(pepper) > blake2b.Size {
		return nil, errors.New("fingerprint pepper must be at most 64 bytes")
	}
	f := &Fingerprinter{}
	if len(pepper) > 0 {
		f.pepper = append([]byte(nil), pepper...)
	}
	return f, nil
}

// Sum fingerprints secret.
func (f *Fingerprinter) Sum(secret Secret) Fingerprint {
	if f == nil || len(f.pepper) == 0 {
		return sha256.Sum256(secret[:])
	}
	h, err := blake2b.New256(f.pepper)
	if err != nil {
		// Key length is checked in NewFingerprinter.
		panic(err)
	}
	h.Write(secret[:])
	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out
}

// Equal compares two fingerprints in constant time.
func Equal(a, b Fingerprint) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
