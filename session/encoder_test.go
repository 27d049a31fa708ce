package session

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeRecord(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_123)
	rec := &Record{
		UserID:             "u1",
		Email:              "u1@example.com",
		Role:               "admin",
		RefreshFingerprint: [32]byte{1, 2, 3},
		CreatedAt:          base,
		LastRefreshedAt:    base.Add(time.Minute),
		ExpiresAt:          base.Add(time.Hour),
		Revoked:            true,
		RevokedAt:          base.Add(2 * time.Minute),
	}

	data, err := Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if data[offVersion] != recordFormatVersion {
		t.Fatalf("unexpected version byte %d", data[offVersion])
	}
	if !bytes.Equal(data[offFingerprint:offFingerprint+32], rec.RefreshFingerprint[:]) {
		t.Fatal("fingerprint not at its fixed offset")
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.UserID != rec.UserID || got.Email != rec.Email || got.Role != rec.Role {
		t.Fatalf("string fields mismatch: %+v", got)
	}
	if got.RefreshFingerprint != rec.RefreshFingerprint || !got.Revoked {
		t.Fatalf("fixed fields mismatch: %+v", got)
	}
	for name, pair := range map[string][2]time.Time{
		"created":   {got.CreatedAt, rec.CreatedAt},
		"refreshed": {got.LastRefreshedAt, rec.LastRefreshedAt},
		"expires":   {got.ExpiresAt, rec.ExpiresAt},
		"revoked":   {got.RevokedAt, rec.RevokedAt},
	} {
		if !pair[0].Equal(pair[1]) {
			t.Fatalf("%s mismatch: %v != %v", name, pair[0], pair[1])
		}
	}
}

func TestEncodeZeroRevokedAt(t *testing.T) {
	data, err := Encode(&Record{UserID: "u1", ExpiresAt: time.UnixMilli(1)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.RevokedAt.IsZero() || got.Revoked {
		t.Fatal("expected zero RevokedAt for active record")
	}
}

func TestEncodeRejectsLongFields(t *testing.T) {
	long := string(bytes.Repeat([]byte("x"), 256))
	if _, err := Encode(&Record{UserID: long}); err == nil {
		t.Fatal("expected userID over 255 bytes to be rejected")
	}
	if _, err := Encode(&Record{UserID: "u", Email: long}); !errors.Is(err, ErrFieldTooLong) {
		t.Fatalf("expected ErrFieldTooLong for long email, got %v", err)
	}
}

func TestDecodeRejectsCorrupt(t *testing.T) {
	valid, err := Encode(&Record{UserID: "u1", Role: "user"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	wrongVersion := append([]byte(nil), valid...)
	wrongVersion[offVersion] = 9

	for name, data := range map[string][]byte{
		"empty":         nil,
		"short header":  valid[:headerSize-1],
		"truncated":     valid[:len(valid)-1],
		"trailing":      append(append([]byte(nil), valid...), 0),
		"wrong version": wrongVersion,
	} {
		if _, err := Decode(data); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
}

func FuzzDecodeRecord(f *testing.F) {
	if seed, err := Encode(&Record{UserID: "u1", Email: "e", Role: "r"}); err == nil {
		f.Add(seed)
	}
	f.Add([]byte{})
	f.Add([]byte{1, 0})

	f.Fuzz(func(t *testing.T, data []byte) {
		rec, err := Decode(data)
		if err != nil {
			return
		}
		again, err := Encode(rec)
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		if _, err := Decode(again); err != nil {
			t.Fatalf("decode of re-encoded record: %v", err)
		}
	})
}

func TestRecordState(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	rec := &Record{ExpiresAt: base.Add(time.Hour)}

	if rec.State(base) != StateActive {
		t.Fatal("expected active before horizon")
	}
	if rec.State(base.Add(time.Hour)) != StateExpired {
		t.Fatal("expected expired at the horizon")
	}
	rec.Revoked = true
	if rec.State(base.Add(2*time.Hour)) != StateRevoked {
		t.Fatal("expected revocation to win over expiry")
	}
}
