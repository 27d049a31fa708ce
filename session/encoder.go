package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const recordFormatVersion = 1

const (
	flagRevoked byte = 1 << 0
)

// Fixed-width header offsets (0-based). The Lua scripts in redis.go use the
// same offsets, 1-based.
const (
	offVersion     = 0
	offFlags       = 1
	offFingerprint = 2
	offCreatedAt   = offFingerprint + 32
	offRefreshedAt = offCreatedAt + 8
	offExpiresAt   = offRefreshedAt + 8
	offRevokedAt   = offExpiresAt + 8
	headerSize     = offRevokedAt + 8
)

// Encode serializes rec without its SessionID, which is the storage key.
// Timestamps are stored as Unix milliseconds.
func Encode(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize + 3 + len(rec.UserID) + len(rec.Email) + len(rec.Role))

	buf.WriteByte(recordFormatVersion)
	var flags byte
	if rec.Revoked {
		flags |= flagRevoked
	}
	buf.WriteByte(flags)
	buf.Write(rec.RefreshFingerprint[:])

	for _, ts := range []time.Time{rec.CreatedAt, rec.LastRefreshedAt, rec.ExpiresAt, rec.RevokedAt} {
		if err := binary.Write(&buf, binary.BigEndian, toMillis(ts)); err != nil {
			return nil, err
		}
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"userID", rec.UserID},
		{"email", rec.Email},
		{"role", rec.Role},
	} {
		if len(field.value) > MaxFieldLen {
			return nil, fmt.Errorf("%w: %s", ErrFieldTooLong, field.name)
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode.
func Decode(data []byte) (*Record, error) {
	if len(data) < headerSize {
		return nil, errors.New("session record too short")
	}
	if data[offVersion] != recordFormatVersion {
		return nil, errors.New("invalid session record version")
	}

	rec := &Record{}
	rec.Revoked = data[offFlags]&flagRevoked != 0
	copy(rec.RefreshFingerprint[:], data[offFingerprint:offCreatedAt])
	rec.CreatedAt = fromMillis(int64(binary.BigEndian.Uint64(data[offCreatedAt:])))
	rec.LastRefreshedAt = fromMillis(int64(binary.BigEndian.Uint64(data[offRefreshedAt:])))
	rec.ExpiresAt = fromMillis(int64(binary.BigEndian.Uint64(data[offExpiresAt:])))
	rec.RevokedAt = fromMillis(int64(binary.BigEndian.Uint64(data[offRevokedAt:])))

	reader := bytes.NewReader(data[headerSize:])
	fields := []*string{&rec.UserID, &rec.Email, &rec.Role}
	for _, dst := range fields {
		n, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*dst = string(raw)
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session record")
	}

	return rec, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func packMillis(t time.Time) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(toMillis(t)))
	return string(b[:])
}
