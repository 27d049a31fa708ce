package refresh

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sid := uuid.NewString()
	secret, err := NewSecret()
	if err != nil {
		t.Fatalf("new secret: %v", err)
	}

	token, err := Encode(sid, secret)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("expected unpadded base64url, got %q", token)
	}
	if len(token) != 64 {
		t.Fatalf("expected 64 char token, got %d", len(token))
	}

	gotSID, gotSecret, err := Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotSID != sid {
		t.Fatalf("session id mismatch: %q != %q", gotSID, sid)
	}
	if gotSecret != secret {
		t.Fatal("secret mismatch")
	}
}

func TestEncodeRejectsNonUUID(t *testing.T) {
	var secret Secret
	if _, err := Encode("not-a-uuid", secret); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"abc",
		"!!!not-base64!!!",
		strings.Repeat("A", 63),
		strings.Repeat("A", 65),
		strings.Repeat("*", 64),
	} {
		if _, _, err := Decode(in); !errors.Is(err, ErrMalformed) {
			t.Fatalf("input %q: expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestFingerprinterPlainAndKeyed(t *testing.T) {
	secret, err := NewSecret()
	if err != nil {
		t.Fatalf("new secret: %v", err)
	}

	plain, err := NewFingerprinter(nil)
	if err != nil {
		t.Fatalf("plain fingerprinter: %v", err)
	}
	keyedA, err := NewFingerprinter([]byte("pepper-a"))
	if err != nil {
		t.Fatalf("keyed fingerprinter: %v", err)
	}
	keyedB, err := NewFingerprinter([]byte("pepper-b"))
	if err != nil {
		t.Fatalf("keyed fingerprinter: %v", err)
	}

	if !Equal(plain.Sum(secret), plain.Sum(secret)) {
		t.Fatal("expected deterministic fingerprint")
	}
	if Equal(plain.Sum(secret), keyedA.Sum(secret)) {
		t.Fatal("expected keyed fingerprint to differ from plain")
	}
	if Equal(keyedA.Sum(secret), keyedB.Sum(secret)) {
		t.Fatal("expected different peppers to produce different fingerprints")
	}

	other, _ := NewSecret()
	if Equal(plain.Sum(secret), plain.Sum(other)) {
		t.Fatal("expected distinct secrets to produce distinct fingerprints")
	}
}

func TestFingerprinterRejectsLongPepper(t *testing.T) {
	if _, err := NewFingerprinter(make([]byte, 65)); err == nil {
		t.Fatal("expected pepper over 64 bytes to be rejected")
	}
}
