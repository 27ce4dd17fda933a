package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/observability"
	"github.com/twofly/client-portal-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// HealthCheck pings one dependency for /healthz and /readyz.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Services groups everything the router serves.
type Services struct {
	Auth         *service.AuthService
	Users        *service.UserService
	Clients      *service.ClientService
	Portal       *service.PortalService
	Integrations *service.IntegrationService
	Audit        *service.AuditService

	Checks       []HealthCheck
	CookieSecure bool
	MaxBodyBytes int64
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc *Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	if svc == nil {
		svc = &Services{}
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger, metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Checks))
	r.Get("/readyz", readyzHandler(svc.Checks, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if svc.Auth == nil {
		return r
	}

	auth := svc.Auth
	staff := RequireStaff(auth, logger)
	manager := RequireManager(auth, logger)
	client := RequireClient(auth, logger)
	maxBody := svc.MaxBodyBytes

	r.Route("/api", func(r chi.Router) {

		// =============================================
		// 1. Authentication
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", loginHandler(auth, svc.CookieSecure, logger))
			r.Post("/client-login", clientLoginHandler(auth, logger))
			r.Post("/logout", logoutHandler(auth, svc.CookieSecure, logger))
			r.With(staff).Get("/me", meHandler(auth, logger))
			r.Post("/forgot-password", forgotPasswordHandler(auth, logger))
			r.Post("/reset-password", resetPasswordHandler(auth, logger))
		})

		// =============================================
		// 2. Staff users
		// =============================================
		r.Route("/users", func(r chi.Router) {
			r.Post("/accept-invite", acceptInviteHandler(svc.Users, logger))
			r.With(manager).Post("/invite", inviteUserHandler(svc.Users, logger))
			r.With(manager).Post("/resend-invite", resendInviteHandler(svc.Users, logger))
			r.With(staff).Get("/", listUsersHandler(svc.Users, logger))
			r.With(staff).Get("/{userId}", getUserHandler(svc.Users, logger))
			r.With(staff).Patch("/{userId}", updateUserHandler(svc.Users, logger))
			r.With(manager).Delete("/{userId}", deleteUserHandler(svc.Users, logger))
		})

		// =============================================
		// 3. Agency dashboard
		// =============================================
		r.Route("/agency", func(r chi.Router) {
			r.Use(staff)

			r.Get("/clients", listClientsHandler(svc.Clients, logger))
			r.Post("/clients", createClientHandler(svc.Clients, maxBody, logger))
			r.Get("/clients/{clientId}", getClientHandler(svc.Clients, logger))
			r.Put("/clients/{clientId}", updateClientHandler(svc.Clients, maxBody, logger))
			r.Delete("/clients/{clientId}", deleteClientHandler(svc.Clients, logger))
			r.Put("/clients/{clientId}/credentials", setClientPasswordHandler(svc.Clients, logger))

			r.Get("/portal-state", getPortalStateHandler(svc.Portal, logger))
			r.Put("/portal-state", savePortalStateHandler(svc.Portal, maxBody, logger))
			r.Get("/overview", overviewHandler(svc.Portal, logger))

			r.Route("/portal-state/{clientId}", func(r chi.Router) {
				r.Post("/approvals", addApprovalHandler(svc.Portal, maxBody, logger))
				r.Patch("/approvals/{itemId}", updateApprovalHandler(svc.Portal, maxBody, logger))
				r.Delete("/approvals/{itemId}", deleteApprovalHandler(svc.Portal, logger))

				r.Post("/needs", addNeedHandler(svc.Portal, logger))
				r.Patch("/needs/{itemId}", updateNeedHandler(svc.Portal, logger))
				r.Delete("/needs/{itemId}", deleteNeedHandler(svc.Portal, logger))

				r.Post("/requests", addRequestHandler(svc.Portal, logger))
				r.Patch("/requests/{itemId}", updateRequestHandler(svc.Portal, logger))
				r.Delete("/requests/{itemId}", deleteRequestHandler(svc.Portal, logger))

				r.Post("/assets", addAssetHandler(svc.Portal, logger))
				r.Delete("/assets/{itemId}", deleteAssetHandler(svc.Portal, logger))

				r.Put("/frustration", setFrustrationHandler(svc.Portal, logger))
			})

			r.With(manager).Get("/audit-logs", auditLogsHandler(svc.Audit, logger))
			r.With(manager).Get("/metrics", portalMetricsHandler(metrics))
		})

		// =============================================
		// 4. Client portal
		// =============================================
		r.Route("/client", func(r chi.Router) {
			r.Use(client)

			r.Get("/portal-state", clientPortalStateHandler(svc.Portal, logger))
			r.Put("/portal-state", clientSavePortalStateHandler(svc.Portal, maxBody, logger))
			r.Patch("/approvals/{itemId}", clientDecideApprovalHandler(svc.Portal, logger))
			r.Post("/requests", clientCreateRequestHandler(svc.Portal, logger))
			r.Post("/seen", clientSeenHandler(svc.Portal, logger))
		})

		// =============================================
		// 5. Google Drive integration
		// =============================================
		r.Route("/integrations/google-drive", func(r chi.Router) {
			r.With(staff).Get("/status", driveStatusHandler(svc.Integrations, logger))
			r.With(manager).Post("/connect", driveConnectHandler(svc.Integrations, logger))
			r.With(manager).Delete("/", driveDisconnectHandler(svc.Integrations, logger))
			r.With(staff).Get("/files", driveFilesHandler(svc.Integrations, logger))
			r.With(staff).Post("/import", driveImportHandler(svc.Integrations, logger))
		})
	})

	return r
}

// ============================================================
// Operational endpoints
// ============================================================

func runChecks(ctx context.Context, checks []HealthCheck) domain.HealthStatus {
	now := time.Now().UTC().Format(time.RFC3339)
	services := []domain.ServiceHealth{
		{Name: "portal-api", Status: "healthy", LastChecked: now},
	}

	overall := "healthy"
	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		start := time.Now()
		err := c.Ping(checkCtx)
		cancel()

		h := domain.ServiceHealth{
			Name:        c.Name,
			Status:      "healthy",
			LatencyMs:   time.Since(start).Milliseconds(),
			LastChecked: now,
		}
		if err != nil {
			h.Status = "unhealthy"
			h.Detail = err.Error()
			overall = "unhealthy"
		}
		services = append(services, h)
	}

	return domain.HealthStatus{Status: overall, Services: services}
}

func healthzHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, runChecks(r.Context(), checks))
	}
}

func readyzHandler(checks []HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := runChecks(r.Context(), checks)
		if status.Status != "healthy" {
			logger.Warn("readiness check failed", zap.Any("services", status.Services))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func portalMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
