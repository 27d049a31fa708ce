package goSession

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a Manager. It is single-use: call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  session.Store

	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis stores sessions in Redis and enables the shared refresh
// throttle. A store set with WithStore takes precedence for sessions.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the session store directly, for example a
// postgres.Store. Without WithStore or WithRedis the Manager keeps sessions
// in process memory.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithAuditSink enables audit dispatch to sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithLogger sets the structured logger for operational warnings. Without
// it the Manager logs nothing.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the wall clock used for issuance, expiry and the
// session horizon. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters. Latency histograms
// also require it.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms records per-operation latency buckets when metrics
// are enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Manager.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Security.EnableRefreshThrottle && b.redis == nil {
		return nil, errors.New("refresh throttle requires a redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	codec, err := jwt.NewCodec(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	fingerprinter, err := refresh.NewFingerprinter(cfg.Refresh.FingerprintPepper)
	if err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis != nil {
			store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
		} else {
			store = session.NewMemoryStore()
		}
	}

	var limiter *rate.Limiter
	if cfg.Security.EnableRefreshThrottle {
		limiter = rate.New(b.redis, rate.Config{
			Prefix: cfg.Session.RedisPrefix,
			Limit:  cfg.Security.MaxRefreshAttempts,
			Window: cfg.Security.RefreshCooldownDuration,
		})
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	b.built = true

	return &Manager{
		config:      cfg,
		codec:       codec,
		fingerprint: fingerprinter,
		store:       store,
		limiter:     limiter,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		now:     now,
	}, nil
}
