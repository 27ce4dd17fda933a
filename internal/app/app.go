// Package app wires configuration, storage and services together. Both the
// HTTP server and the admin CLI build their dependencies through it.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/twofly/client-portal-go/internal/config"
	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/handler"
	"github.com/twofly/client-portal-go/internal/infra/cache"
	"github.com/twofly/client-portal-go/internal/infra/client"
	"github.com/twofly/client-portal-go/internal/infra/docstore"
	"github.com/twofly/client-portal-go/internal/infra/jsonstore"
	"github.com/twofly/client-portal-go/internal/infra/observability"
	"github.com/twofly/client-portal-go/internal/infra/ratelimit"
	"github.com/twofly/client-portal-go/internal/infra/resilience"
	"github.com/twofly/client-portal-go/internal/port"
	"github.com/twofly/client-portal-go/internal/service"

	"go.uber.org/zap"
)

// App holds every long-lived dependency.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Backend docstore.Backend
	Store   *jsonstore.Client

	portalCache *cache.InMemory[*domain.PortalState]
	redis       *ratelimit.Redis

	Audit        *service.AuditService
	Portal       *service.PortalService
	Clients      *service.ClientService
	Users        *service.UserService
	Auth         *service.AuthService
	Integrations *service.IntegrationService
	Admin        *service.AdminService
}

// New opens the configured storage backend and builds the services.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	backend, err := docstore.Open(docstore.Options{
		Driver:      cfg.StorageDriver,
		DataDir:     cfg.DataDir,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
		Backend: backend,
		Store:   jsonstore.NewClient(docstore.New(backend, logger), logger),
	}

	// --- Rate limiter ---
	var limiter port.RateLimiter = ratelimit.NewMemory()
	if cfg.RateLimitRedisURL != "" {
		r, err := ratelimit.NewRedis(ctx, cfg.RateLimitRedisURL)
		if err != nil {
			backend.Close()
			return nil, err
		}
		a.redis = r
		limiter = r
		logger.Info("rate limiter: redis")
	}

	// --- Cache ---
	a.portalCache = cache.New[*domain.PortalState](cfg.PortalCacheTTL).WithStats(a.Metrics.CacheStats("portal"))

	// --- Google Drive client ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("google-drive", logger)
	drive := client.NewDriveClient(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.GoogleDriveAPIURL, cb, resilienceCfg)

	// --- Services ---
	store := a.Store
	a.Audit = service.NewAuditService(store, logger)
	a.Portal = service.NewPortalService(store, store, store, a.portalCache, a.Metrics, cfg.MaxDocBytes, logger)
	a.Clients = service.NewClientService(store, store, store, a.Portal, a.Audit, logger)
	a.Users = service.NewUserService(store, store, store, a.Audit, nil, cfg.InviteTTL, cfg.AppBaseURL, logger)
	a.Auth = service.NewAuthService(service.AuthDeps{
		Users:       store,
		Clients:     store,
		Credentials: store,
		Tokens:      store,
		Legacy:      store,
		Limiter:     limiter,
		Audit:       a.Audit,
		Metrics:     a.Metrics,
	}, service.AuthConfig{
		JWTSecret:        cfg.JWTSecret,
		StaffSessionTTL:  cfg.StaffSessionTTL,
		ClientSessionTTL: cfg.ClientSessionTTL,
		ResetTTL:         cfg.ResetTTL,
		AppBaseURL:       cfg.AppBaseURL,
		LegacyHeaderAuth: cfg.LegacyHeaderAuth,
	}, logger)
	a.Integrations = service.NewIntegrationService(store, drive, a.Portal, a.Audit, a.Metrics, logger)
	a.Admin = service.NewAdminService(store, store, store, a.Users, a.Clients, a.Portal, a.Audit, logger)

	return a, nil
}

// Router builds the HTTP handler with health checks for every backing store.
func (a *App) Router() http.Handler {
	checks := []handler.HealthCheck{{Name: "storage-" + a.Backend.Driver(), Ping: a.Backend.Ping}}
	if a.redis != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Ping: a.redis.Ping})
	}
	return handler.NewRouter(&handler.Services{
		Auth:         a.Auth,
		Users:        a.Users,
		Clients:      a.Clients,
		Portal:       a.Portal,
		Integrations: a.Integrations,
		Audit:        a.Audit,
		Checks:       checks,
		CookieSecure: a.Config.CookieSecure,
		MaxBodyBytes: int64(a.Config.MaxDocBytes) * 2,
	}, a.Metrics, a.Logger)
}

// UpgradeCredentials hashes any plaintext client passwords left by older
// deployments.
func (a *App) UpgradeCredentials(ctx context.Context) (int, error) {
	return a.Store.UpgradeLegacyCredentials(ctx, service.HashLegacyPassword)
}

// WatchDataDir drops cached portal state whenever portal-state.json changes
// on disk behind the server's back. Only the file backend can be watched.
func (a *App) WatchDataDir(ctx context.Context) error {
	fb, ok := a.Backend.(*docstore.FileBackend)
	if !ok {
		return nil
	}
	return fb.Watch(ctx, a.Logger, func(name string) {
		if name == jsonstore.DocPortalState {
			a.Portal.InvalidateAll()
		}
	})
}

// Close releases the cache sweeper, the limiter and the storage backend.
func (a *App) Close() error {
	a.portalCache.Close()
	if a.redis != nil {
		a.redis.Close()
	}
	return a.Backend.Close()
}
