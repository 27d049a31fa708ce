package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript increments the window counter and arms its expiry on the first
// hit in one step. Returns the post-increment count.
var hitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Config tunes the refresh throttle.
type Config struct {
	// Prefix namespaces counter keys. Empty defaults to "gs".
	Prefix string
	// Limit is the number of refresh attempts allowed per Window.
	Limit  int
	Window time.Duration
}

// Limiter caps refresh attempts per session with fixed-window counters in
// Redis, shared by every process pointed at the same Redis. A nil *Limiter
// allows everything.
type Limiter struct {
	client redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

// New returns a Limiter on client.
func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "gs"
	}
	return &Limiter{
		client: client,
		prefix: cfg.Prefix,
		limit:  int64(cfg.Limit),
		window: cfg.Window,
	}
}

// Allow counts one refresh attempt for sessionID. Every attempt counts,
// successful or not, and ErrRateLimited is returned once the count exceeds
// the limit.
func (l *Limiter) Allow(ctx context.Context, sessionID string) error {
	if l == nil {
		return nil
	}
	n, err := hitScript.Run(ctx, l.client, []string{l.key(sessionID)}, l.window.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n > l.limit {
		return ErrRateLimited
	}
	return nil
}

// Reset drops the counter for sessionID.
func (l *Limiter) Reset(ctx context.Context, sessionID string) error {
	if l == nil {
		return nil
	}
	if err := l.client.Del(ctx, l.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(sessionID string) string {
	return l.prefix + ":rl:" + sessionID
}
