package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/service"
	"go.uber.org/zap"
)

type contextKey string

const principalKey contextKey = "principal"

// SessionCookie carries the staff session token.
const SessionCookie = "2fly_session"

// Legacy identity headers, honored only when legacy header auth is enabled.
const (
	HeaderUserID      = "X-User-Id"
	HeaderWorkspaceID = "X-Workspace-Id"
)

// resolvePrincipal authenticates the request. A bearer token may be a
// client-portal or a staff session; the cookie is always a staff session;
// legacy headers come last.
func resolvePrincipal(r *http.Request, authSvc *service.AuthService) (*domain.Principal, error) {
	ctx := r.Context()

	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return nil, &domain.ErrUnauthorized{Message: "invalid authorization header"}
		}
		p, err := authSvc.ValidateClientSession(ctx, parts[1])
		if err == nil {
			return p, nil
		}
		return authSvc.ValidateStaffSession(ctx, parts[1])
	}

	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return authSvc.ValidateStaffSession(ctx, c.Value)
	}

	if authSvc.LegacyHeaderAuthEnabled() {
		if userID := r.Header.Get(HeaderUserID); userID != "" {
			return authSvc.ResolveLegacyHeaders(ctx, r.Header.Get(HeaderWorkspaceID), userID)
		}
	}

	return nil, &domain.ErrUnauthorized{Message: "authentication required"}
}

// requirePrincipal authenticates every request and lets through those
// accepted by allow.
func requirePrincipal(authSvc *service.AuthService, logger *zap.Logger, allow func(p *domain.Principal) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := resolvePrincipal(r, authSvc)
			if err != nil {
				logger.Debug("auth: rejected",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				handleServiceError(w, err, logger)
				return
			}
			if allow != nil {
				if err := allow(p); err != nil {
					handleServiceError(w, err, logger)
					return
				}
			}
			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth admits any authenticated principal.
func RequireAuth(authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	return requirePrincipal(authSvc, logger, nil)
}

// RequireStaff admits agency staff of any role except CLIENT.
func RequireStaff(authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	return requirePrincipal(authSvc, logger, func(p *domain.Principal) error {
		if !p.IsStaff() {
			return &domain.ErrForbidden{Action: "staff access required"}
		}
		return nil
	})
}

// RequireManager admits OWNER and ADMIN.
func RequireManager(authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	return requirePrincipal(authSvc, logger, func(p *domain.Principal) error {
		if !p.CanManage() {
			return &domain.ErrForbidden{Action: "owner or admin role required"}
		}
		return nil
	})
}

// RequireClient admits sessions bound to a single client.
func RequireClient(authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	return requirePrincipal(authSvc, logger, func(p *domain.Principal) error {
		if p.PortalClientID() == "" {
			return &domain.ErrForbidden{Action: "client portal session required"}
		}
		return nil
	})
}

// PrincipalFromContext extracts the authenticated caller from context.
func PrincipalFromContext(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(principalKey).(*domain.Principal)
	return p
}
