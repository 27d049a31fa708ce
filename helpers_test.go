package goSession

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = testKey
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestManager(t testing.TB, cfg Config, clock *testClock) *Manager {
	t.Helper()

	b := New().WithConfig(cfg)
	if clock != nil {
		b = b.WithClock(clock.Now)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

// failingStore reports every call as an outage.
type failingStore struct{}

func (failingStore) Create(context.Context, session.CreateParams) (string, error) {
	return "", fmt.Errorf("%w: connection refused", session.ErrUnavailable)
}

func (failingStore) Get(context.Context, string) (*session.Record, error) {
	return nil, fmt.Errorf("%w: connection refused", session.ErrUnavailable)
}

func (failingStore) RotateRefreshToken(context.Context, session.RotateParams) (*session.Record, error) {
	return nil, fmt.Errorf("%w: connection refused", session.ErrUnavailable)
}

func (failingStore) Revoke(context.Context, string, time.Time) error {
	return fmt.Errorf("%w: connection refused", session.ErrUnavailable)
}
