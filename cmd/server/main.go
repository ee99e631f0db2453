// Package main is the entrypoint for the fabricd API server.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/tomvergara/fabricd/internal/api"
	"github.com/tomvergara/fabricd/internal/api/handler"
	mw "github.com/tomvergara/fabricd/internal/api/middleware"
	"github.com/tomvergara/fabricd/internal/cache"
	"github.com/tomvergara/fabricd/internal/config"
	"github.com/tomvergara/fabricd/internal/gateway"
	"github.com/tomvergara/fabricd/internal/provisioning"
	"github.com/tomvergara/fabricd/internal/store"
	"github.com/tomvergara/fabricd/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	slog.SetDefault(newLogger(os.Getenv("FABRICD_ENV")))

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(env string) *slog.Logger {
	if env == "development" || env == "" {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// ensureBootstrapKey creates an admin API key on a fresh database. The raw
// key is logged exactly once; afterwards only its bcrypt hash exists.
func ensureBootstrapKey(ctx context.Context, st store.Store) error {
	keys, err := st.ListAPIKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return nil
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	rawKey := "fd_" + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	key := &models.APIKey{
		Name:      "bootstrap-admin",
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:8],
		Scopes:    []string{"read", "write", "admin"},
	}
	if err := st.CreateAPIKey(ctx, key); err != nil {
		return err
	}

	slog.Warn("created bootstrap admin API key; store it now, it will not be shown again",
		"key", rawKey)
	return nil
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and provisioning service
	pgStore := store.NewPostgresStore(pool)

	if err := ensureBootstrapKey(ctx, pgStore); err != nil {
		return fmt.Errorf("bootstrap api key: %w", err)
	}

	svc := provisioning.NewService(
		pgStore,
		redisCache,
		gateway.NewFactory(cfg.Gateway.RequestTimeout, cfg.Gateway.ProbeTimeout),
		gateway.NewOrchestratorFactory(cfg.Gateway.RequestTimeout, cfg.Gateway.ProbeTimeout),
	)

	// 6. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, cfg.RateLimit.RequestsPerMinute)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache),

		SubmitJobHandler: handler.NewSubmitJobHandler(svc),
		ListJobsHandler:  handler.NewListJobsHandler(pgStore),
		GetJobHandler:    handler.NewGetJobHandler(pgStore),
		JobLogsHandler:   handler.NewJobLogsHandler(pgStore),
		DeleteJobHandler: handler.NewDeleteJobHandler(pgStore),

		ValidateHandler:          handler.NewValidateHandler(svc),
		ValidateMultiSiteHandler: handler.NewValidateMultiSiteHandler(svc),

		ListTemplatesHandler: handler.NewListTemplatesHandler(pgStore),
		GetTemplateHandler:   handler.NewGetTemplateHandler(pgStore),

		StatsHandler:      handler.NewStatsHandler(pgStore),
		RecentLogsHandler: handler.NewRecentLogsHandler(pgStore),

		CreateKeyHandler: handler.NewCreateAPIKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListAPIKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeAPIKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
