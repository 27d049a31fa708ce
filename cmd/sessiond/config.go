package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/spf13/viper"
)

// serverConfig holds sessiond settings loaded from the environment.
type serverConfig struct {
	Addr string `mapstructure:"SESSIOND_ADDR"`
	// Store is one of memory, miniredis, redis or postgres.
	Store       string `mapstructure:"SESSION_STORE"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisPrefix string `mapstructure:"REDIS_PREFIX"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	JWTSigningKey string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer     string        `mapstructure:"JWT_ISSUER"`
	JWTAudience   string        `mapstructure:"JWT_AUDIENCE"`
	AccessTTL     time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	RefreshTTL    time.Duration `mapstructure:"JWT_REFRESH_TTL"`

	RotateRefresh     bool   `mapstructure:"REFRESH_ROTATE"`
	RevokeOnReuse     bool   `mapstructure:"REFRESH_REVOKE_ON_REUSE"`
	FingerprintPepper string `mapstructure:"REFRESH_PEPPER"`
	RefreshThrottle   bool   `mapstructure:"REFRESH_THROTTLE"`

	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
	// AuditSink is one of "stdout" (JSON lines), "log" (the slog logger)
	// or "none".
	AuditSink      string `mapstructure:"AUDIT_SINK"`
	TrustForwarded bool   `mapstructure:"TRUST_FORWARDED_FOR"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`

	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// DemoUsers seeds the static identity verifier:
	// "userID:email:password:role" entries separated by commas.
	DemoUsers string `mapstructure:"DEMO_USERS"`
}

// loadConfig reads .env (if present), then the environment. Env vars
// override .env.
func loadConfig() (*serverConfig, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("SESSIOND_ADDR", ":8080")
	v.SetDefault("SESSION_STORE", "miniredis")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PREFIX", "gs")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SIGNING_KEY", "")
	v.SetDefault("JWT_ISSUER", "goSession")
	v.SetDefault("JWT_AUDIENCE", "goSession-users")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("REFRESH_ROTATE", true)
	v.SetDefault("REFRESH_REVOKE_ON_REUSE", false)
	v.SetDefault("REFRESH_PEPPER", "")
	v.SetDefault("REFRESH_THROTTLE", false)
	v.SetDefault("SWEEP_INTERVAL", "10m")
	v.SetDefault("AUDIT_SINK", "stdout")
	v.SetDefault("TRUST_FORWARDED_FOR", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("DEMO_USERS", "")

	var cfg serverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	switch cfg.Store {
	case "memory", "miniredis":
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("config: REDIS_ADDR must be set when SESSION_STORE=redis")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when SESSION_STORE=postgres")
		}
	default:
		return nil, fmt.Errorf("config: unknown SESSION_STORE %q", cfg.Store)
	}
	switch cfg.AuditSink {
	case "stdout", "log", "none":
	default:
		return nil, fmt.Errorf("config: unknown AUDIT_SINK %q", cfg.AuditSink)
	}
	if cfg.RefreshThrottle && cfg.Store != "redis" && cfg.Store != "miniredis" {
		return nil, errors.New("config: REFRESH_THROTTLE requires a redis store")
	}
	if len(cfg.JWTSigningKey) < 32 {
		return nil, errors.New("config: JWT_SIGNING_KEY must be at least 32 bytes")
	}

	return &cfg, nil
}

// managerConfig maps sessiond settings onto goSession.Config.
func (c *serverConfig) managerConfig() goSession.Config {
	cfg := goSession.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(c.JWTSigningKey)
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.Refresh.TTL = c.RefreshTTL
	cfg.Refresh.RotateOnUse = c.RotateRefresh
	cfg.Refresh.RevokeOnReuse = c.RevokeOnReuse
	if c.FingerprintPepper != "" {
		cfg.Refresh.FingerprintPepper = []byte(c.FingerprintPepper)
	}
	cfg.Session.RedisPrefix = c.RedisPrefix
	cfg.Session.SweepInterval = c.SweepInterval
	cfg.Security.EnableRefreshThrottle = c.RefreshThrottle
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func (c *serverConfig) demoUsers() ([]demoUser, error) {
	var out []demoUser
	for _, entry := range strings.Split(c.DemoUsers, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("config: DEMO_USERS entry %q must be userID:email:password:role", entry)
		}
		out = append(out, demoUser{
			Identity: goSession.Identity{UserID: parts[0], Email: parts[1], Role: parts[3]},
			Password: parts[2],
		})
	}
	return out, nil
}
