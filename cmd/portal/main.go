package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twofly/client-portal-go/internal/app"
	"github.com/twofly/client-portal-go/internal/config"
	"github.com/twofly/client-portal-go/internal/infra/observability"

	"go.uber.org/zap"
)

func main() {
	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("environment", cfg.Environment),
		zap.String("storage_driver", cfg.StorageDriver),
		zap.String("data_dir", cfg.DataDir),
		zap.Duration("portal_cache_ttl", cfg.PortalCacheTTL),
		zap.Duration("staff_session_ttl", cfg.StaffSessionTTL),
		zap.Duration("client_session_ttl", cfg.ClientSessionTTL),
		zap.Bool("legacy_header_auth", cfg.LegacyHeaderAuth),
		zap.Bool("redis_rate_limit", cfg.RateLimitRedisURL != ""),
	)
	if cfg.LegacyHeaderAuth {
		logger.Warn("legacy header authentication is enabled; X-User-Id requests skip password checks")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Tracing ---
	shutdown, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, "2fly-portal")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Dependencies ---
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}
	defer a.Close()

	if n, err := a.UpgradeCredentials(ctx); err != nil {
		logger.Fatal("failed to upgrade client credentials", zap.Error(err))
	} else if n > 0 {
		logger.Info("hashed legacy plaintext client credentials", zap.Int("count", n))
	}

	if cfg.WatchDataDir {
		if err := a.WatchDataDir(ctx); err != nil {
			logger.Warn("data dir watcher disabled", zap.Error(err))
		}
	}

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      a.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
