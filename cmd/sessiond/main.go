// Command sessiond serves the goSession lifecycle over HTTP: login, refresh,
// logout and an authenticated /auth/me, plus /metrics and /healthz.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/password"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/session/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sessiond: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := goSession.New().
		WithConfig(cfg.managerConfig()).
		WithLogger(logger)
	switch cfg.AuditSink {
	case "stdout":
		builder = builder.WithAuditSink(goSession.NewJSONWriterSink(os.Stdout))
	case "log":
		builder = builder.WithAuditSink(goSession.NewSlogSink(logger.With("component", "audit")))
	}

	cleanup, err := configureStore(ctx, cfg, builder, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	manager, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build manager: %w", err)
	}
	defer manager.Close()

	users, err := cfg.demoUsers()
	if err != nil {
		return err
	}
	verifier, err := newStaticVerifier(password.DefaultParams(), users)
	if err != nil {
		return fmt.Errorf("identity verifier: %w", err)
	}
	srv := &server{
		manager:  manager,
		verifier: verifier,
		logger:   logger,
	}
	stopMetrics, err := startOTLPMetrics(ctx, cfg.OTLPEndpoint, cfg.OTLPInsecure, manager)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stopMetrics(flushCtx); err != nil {
			logger.Warn("flush otlp metrics", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(cfg.TrustForwarded),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("sessiond listening", "addr", cfg.Addr, "store", cfg.Store)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		stopSweeper := manager.StartSweeper(gctx, cfg.SweepInterval)
		<-gctx.Done()
		stopSweeper()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// configureStore attaches the configured session store to builder and
// returns a function releasing its connections.
func configureStore(ctx context.Context, cfg *serverConfig, builder *goSession.Builder, logger *slog.Logger) (func(), error) {
	switch cfg.Store {
	case "memory":
		builder.WithStore(session.NewMemoryStore())
		return func() {}, nil

	case "miniredis":
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		logger.Warn("using in-process miniredis; sessions are lost on restart", "addr", mr.Addr())
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		builder.WithRedis(client)
		return func() {
			_ = client.Close()
			mr.Close()
		}, nil

	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		builder.WithRedis(client)
		return func() { _ = client.Close() }, nil

	case "postgres":
		if err := postgres.Migrate(cfg.DatabaseURL, "up"); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		builder.WithStore(postgres.NewStore(pool))
		return pool.Close, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
