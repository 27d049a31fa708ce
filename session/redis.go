package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusRevoked     int64 = 1
	rotateStatusExpired     int64 = 2
	rotateStatusMismatch    int64 = 3
	rotateStatusRotated     int64 = 4
	rotateStatusInvalidBlob int64 = 5
)

const (
	revokeStatusInvalidBlob    int64 = -1
	revokeStatusNotFound       int64 = 0
	revokeStatusRevoked        int64 = 1
	revokeStatusAlreadyRevoked int64 = 2
)

// Offsets below are 1-based mirrors of the header constants in encoder.go.
const luaReadBE64 = `
local function read_be64(s, i)
  local n = 0
  for j = i, i + 7 do
    local b = string.byte(s, j)
    if not b then
      return nil
    end
    n = n * 256 + b
  end
  return n
end
`

const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
local ttl = tonumber(ARGV[2])
redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
redis.call("SADD", KEYS[2], ARGV[3])
local user_ttl = redis.call("PTTL", KEYS[2])
if user_ttl < ttl then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

var createSessionLua = redis.NewScript(createSessionScript)

const rotateRefreshScript = luaReadBE64 + `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
if #data < 67 or string.byte(data, 1) ~= 1 then
  return {5}
end

if string.byte(data, 2) % 2 == 1 then
  return {1}
end

local expires_at = read_be64(data, 51)
if not expires_at or expires_at <= tonumber(ARGV[3]) then
  return {2}
end

if string.sub(data, 3, 34) ~= ARGV[1] then
  return {3}
end

local updated = string.sub(data, 1, 2) .. ARGV[2] .. string.sub(data, 35, 42) .. ARGV[4] .. ARGV[5] .. string.sub(data, 59)
redis.call("SET", KEYS[1], updated, "PX", tonumber(ARGV[6]))

local user_len = string.byte(data, 67)
local user_key = ARGV[7] .. string.sub(data, 68, 67 + user_len)
if redis.call("PTTL", user_key) < tonumber(ARGV[6]) then
  redis.call("PEXPIRE", user_key, tonumber(ARGV[6]))
end

return {4, updated}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

const revokeSessionScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if #data < 67 or string.byte(data, 1) ~= 1 then
  return -1
end

local user_len = string.byte(data, 67)
local user_id = string.sub(data, 68, 67 + user_len)
redis.call("SREM", ARGV[2] .. user_id, ARGV[1])

local flags = string.byte(data, 2)
if flags % 2 == 1 then
  return 2
end

local updated = string.sub(data, 1, 1) .. string.char(flags + 1) .. string.sub(data, 3, 58) .. ARGV[3] .. string.sub(data, 67)
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("SET", KEYS[1], updated, "PX", ttl)
else
  redis.call("SET", KEYS[1], updated)
end
return 1
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

const sweepBatchSize = 256

// RedisStore is a Redis-backed Store. Records live under <prefix>:s:<id>
// with a TTL equal to the remaining refresh horizon, and each user has a
// set <prefix>:u:<userID> of live session ids. Rotation and revocation run
// as Lua scripts so each is a single atomic step on the server.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore using prefix as key namespace. An empty
// prefix defaults to "gs".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "gs"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *RedisStore) userKeyPrefix() string {
	return s.prefix + ":u:"
}

func (s *RedisStore) userKey(userID string) string {
	return s.userKeyPrefix() + userID
}

// Create implements Store.
//
//	Performance: 1 EVALSHA (EXISTS + SET + SADD + PEXPIRE).
func (s *RedisStore) Create(ctx context.Context, p CreateParams) (string, error) {
	if err := ValidateCreate(p); err != nil {
		return "", err
	}

	ttl := p.ExpiresAt.Sub(p.CreatedAt)
	for attempt := 0; attempt < 3; attempt++ {
		id := NewID()
		data, err := Encode(&Record{
			SessionID:          id,
			UserID:             p.UserID,
			Email:              p.Email,
			Role:               p.Role,
			RefreshFingerprint: p.RefreshFingerprint,
			CreatedAt:          p.CreatedAt,
			LastRefreshedAt:    p.CreatedAt,
			ExpiresAt:          p.ExpiresAt,
		})
		if err != nil {
			return "", err
		}

		created, err := createSessionLua.Run(
			ctx,
			s.redis,
			[]string{s.key(id), s.userKey(p.UserID)},
			data,
			ttl.Milliseconds(),
			id,
		).Int64()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if created == 1 {
			return id, nil
		}
	}

	return "", errors.New("session id collision")
}

// Get implements Store.
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	rec.SessionID = id
	return rec, nil
}

// RotateRefreshToken implements Store.
//
//	Performance: 1 EVALSHA.
func (s *RedisStore) RotateRefreshToken(ctx context.Context, p RotateParams) (*Record, error) {
	ttl := p.ExpiresAt.Sub(p.Now)
	if ttl <= 0 {
		return nil, errors.New("rotation horizon must be after now")
	}

	result, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.key(p.SessionID)},
		p.Current[:],
		p.Next[:],
		p.Now.UnixMilli(),
		packMillis(p.Now),
		packMillis(p.ExpiresAt),
		ttl.Milliseconds(),
		s.userKeyPrefix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, ErrNotFound
	case rotateStatusRevoked:
		return nil, ErrRevoked
	case rotateStatusExpired:
		return nil, ErrExpired
	case rotateStatusMismatch:
		return nil, ErrFingerprintMismatch
	case rotateStatusInvalidBlob:
		return nil, ErrCorrupt
	case rotateStatusRotated:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing rotated record", ErrUnavailable)
		}
		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid rotated record type", ErrUnavailable)
		}
		rec, err := Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		rec.SessionID = p.SessionID
		return rec, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate status %d", ErrUnavailable, code)
	}
}

// Revoke implements Store. The record is kept as a revoked tombstone until
// its horizon so late verifications still see StateRevoked.
//
//	Performance: 1 EVALSHA.
func (s *RedisStore) Revoke(ctx context.Context, id string, now time.Time) error {
	code, err := s.revoke(ctx, id, now)
	if err != nil {
		return err
	}
	if code == revokeStatusNotFound {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) revoke(ctx context.Context, id string, now time.Time) (int64, error) {
	code, err := revokeSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(id)},
		id,
		s.userKeyPrefix(),
		packMillis(now),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if code == revokeStatusInvalidBlob {
		return 0, ErrCorrupt
	}
	return code, nil
}

// ListUserSessions implements UserIndex. Index entries whose record has
// already expired out of Redis are pruned on the way.
//
//	Performance: SMEMBERS + 1 pipelined GET per session.
func (s *RedisStore) ListUserSessions(ctx context.Context, userID string) ([]*Record, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]*Record, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		rec, err := Decode(data)
		if err != nil || rec.Revoked {
			continue
		}
		rec.SessionID = ids[i]
		out = append(out, rec)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return out, nil
}

// RevokeUserSessions implements UserIndex. Records that fail to decode are
// deleted and unindexed rather than aborting the sweep over the user's set.
//
// ATOMICITY NOTE: each session is revoked atomically, but the set is read
// once up front. A session created concurrently with this call may survive
// it.
func (s *RedisStore) RevokeUserSessions(ctx context.Context, userID string, now time.Time) (int, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		code, err := s.revoke(ctx, id, now)
		if errors.Is(err, ErrCorrupt) {
			pipe := s.redis.TxPipeline()
			pipe.Del(ctx, s.key(id))
			pipe.SRem(ctx, userKey, id)
			if _, err := pipe.Exec(ctx); err != nil {
				return revoked, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			continue
		}
		if err != nil {
			return revoked, err
		}
		if code == revokeStatusRevoked {
			revoked++
		}
	}
	return revoked, nil
}

// Sweep implements Sweeper. Redis already evicts records at their horizon
// through key TTLs; Sweep catches records whose horizon passed by the
// caller's clock before the server evicted them.
func (s *RedisStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.prefix+":s:*", sweepBatchSize).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		n, err := s.sweepBatch(ctx, keys, now)
		removed += n
		if err != nil {
			return removed, err
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *RedisStore) sweepBatch(ctx context.Context, keys []string, now time.Time) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	removed := 0
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		rec, err := Decode(data)
		if err != nil || now.Before(rec.ExpiresAt) {
			continue
		}

		id := strings.TrimPrefix(keys[i], s.prefix+":s:")
		deleted, err := s.redis.Del(ctx, keys[i]).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if err := s.redis.SRem(ctx, s.userKey(rec.UserID), id).Err(); err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		removed += int(deleted)
	}
	return removed, nil
}

// Ping reports round-trip latency to Redis.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
