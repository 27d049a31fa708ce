package goSession

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/jwt"
)

// Config is the complete Manager configuration. Start from DefaultConfig
// and override fields; a Config is copied into the Manager at Build.
type Config struct {
	JWT      JWTConfig
	Refresh  RefreshConfig
	Session  SessionConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig

	// OperationTimeout bounds every store call on top of the caller's
	// context. Zero disables the extra bound.
	OperationTimeout time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access-token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	// VerifyKeys maps kid to verification key for rotation windows.
	VerifyKeys map[string][]byte
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig configures refresh tokens and the session horizon.
type RefreshConfig struct {
	// TTL is the refresh horizon, measured from creation or the last rotation.
	TTL time.Duration
	// RotateOnUse issues a new refresh secret on every refresh. When false
	// the presented token stays valid until the horizon.
	RotateOnUse bool
	// RevokeOnReuse revokes the whole session when a stale refresh secret is
	// presented.
	RevokeOnReuse bool
	// FingerprintPepper keys the stored refresh fingerprint. Empty means plain
	// SHA-256.
	FingerprintPepper []byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures session records.
type SessionConfig struct {
	RedisPrefix string
	DefaultRole string
	// SweepInterval is used by StartSweeper when it is given no interval.
	SweepInterval time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig configures refresh throttling.
type SecurityConfig struct {
	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. A signing key must
// still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "goSession",
			Audience:      "goSession-users",
		},
		Refresh: RefreshConfig{
			TTL:           7 * 24 * time.Hour,
			RotateOnUse:   true,
			RevokeOnReuse: false,
		},
		Session: SessionConfig{
			RedisPrefix:   "gs",
			DefaultRole:   "user",
			SweepInterval: 10 * time.Minute,
		},
		Security: SecurityConfig{
			EnableRefreshThrottle:   false,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		OperationTimeout: 2 * time.Second,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Refresh.FingerprintPepper = cloneBytes(cfg.Refresh.FingerprintPepper)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem it finds. Build calls
// it; callers loading config from the environment may call it earlier.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch jwt.SigningMethod(strings.ToLower(c.JWT.SigningMethod)) {
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer is required")
	}
	if strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience is required")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if len(c.Refresh.FingerprintPepper) > 64 {
		return errors.New("Refresh FingerprintPepper must be at most 64 bytes")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix is required")
	}
	if strings.Contains(c.Session.RedisPrefix, ":") {
		return errors.New("Session RedisPrefix must not contain ':'")
	}
	if c.Session.SweepInterval < 0 {
		return errors.New("Session SweepInterval must be >= 0")
	}

	// Security
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("MaxRefreshAttempts must be > 0 when refresh throttle is enabled")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("RefreshCooldownDuration must be > 0 when refresh throttle is enabled")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.OperationTimeout < 0 {
		return errors.New("OperationTimeout must be >= 0")
	}

	return nil
}
