package handler

import (
	"context"
	"net/http"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 3b. Portal state (agency side)
// ============================================================

func getPortalStateHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/agency/portal-state")
		defer span.End()

		clientID := r.URL.Query().Get("clientId")
		if clientID == "" {
			writeError(w, http.StatusBadRequest, "clientId is required")
			return
		}

		st, err := portalSvc.Load(ctx, PrincipalFromContext(ctx), clientID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, st)
	}
}

func savePortalStateHandler(portalSvc *service.PortalService, maxBody int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/agency/portal-state")
		defer span.End()

		clientID := r.URL.Query().Get("clientId")
		if clientID == "" {
			writeError(w, http.StatusBadRequest, "clientId is required")
			return
		}

		var st domain.PortalState
		if !decodeJSON(w, r, maxBody, &st) {
			return
		}

		resp, err := portalSvc.Save(ctx, PrincipalFromContext(ctx), clientID, &st)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// overviewHandler summarizes every client of the agency, or one when
// ?clientId= is given.
func overviewHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/agency/overview")
		defer span.End()

		items, err := portalSvc.Overview(ctx, PrincipalFromContext(ctx), r.URL.Query().Get("clientId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.PortalOverview]{Data: items, Total: len(items)})
	}
}

// portalMutation decodes an optional body of type T and applies fn to the
// client's document, answering with the updated state.
func portalMutation[T any](name string, status int, withBody bool, maxBody int64, logger *zap.Logger,
	fn func(ctx context.Context, p *domain.Principal, clientID, itemID string, in *T) (*domain.PortalState, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), name)
		defer span.End()

		in := new(T)
		if withBody && !decodeJSON(w, r, maxBody, in) {
			return
		}

		st, err := fn(ctx, PrincipalFromContext(ctx), chi.URLParam(r, "clientId"), chi.URLParam(r, "itemId"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, status, st)
	}
}

type noBody struct{}

func addApprovalHandler(portalSvc *service.PortalService, maxBody int64, logger *zap.Logger) http.HandlerFunc {
	return portalMutation("POST /api/agency/portal-state/{clientId}/approvals", http.StatusCreated, true, maxBody, logger,
		func(ctx context.Context, p *domain.Principal, clientID, _ string, in *domain.ApprovalInput) (*domain.PortalState, error) {
			return portalSvc.AddApproval(ctx, p, clientID, in)
		})
}

func updateApprovalHandler(portalSvc *service.PortalService, maxBody int64, logger *zap.Logger) http.HandlerFunc {
	return portalMutation("PATCH /api/agency/portal-state/{clientId}/approvals/{id}", http.StatusOK, true, maxBody, logger,
		func(ctx context.Context, p *domain.Principal, clientID, itemID string, in *domain.ApprovalInput) (*domain.PortalState, error) {
			return portalSvc.UpdateApproval(ctx, p, clientID, itemID, in)
		})
}

func deleteApprovalHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return portalMutation("DELETE /api/agency/portal-state/{clientId}/approvals/{id}", http.StatusOK, false, 0, logger,
		func(ctx context.Context, p *domain.Principal, clientID, itemID string, _ *noBody) (*domain.PortalState, error) {
			return portalSvc.DeleteApproval(ctx, p, clientID, itemID)
		})
}

func addNeedHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return portalMutation("POST /api/agency/portal-state/{clientId}/needs", http.StatusCreated, true, 0, logger,
		func(ctx context.Context, p *domain.Principal, clientID, _ string, in *domain.NeedInput) (*domain.PortalState, error) {
			return portalSvc.AddNeed(ctx, p, clientID, in)
		})
}

func updateNeedHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return portalMutation("PATCH /api/agency/portal-state/{clientId}/needs/{id}", http.StatusOK, true, 0, logger,
		func(ctx context.Context, p *domain.Principal, clientID, itemID string, in *domain.NeedInput) (*domain.PortalState, error) {
			return portalSvc.UpdateNeed(ctx, p, clientID, itemID, in)
		})
}

func deleteNeedHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return portalMutation("DELETE /api/agency/portal-state/{clientId}/needs/{id}", http.StatusOK, false, 0, logger,
		func(ctx context.Context, p *domain.Principal, clientID, itemID string, _ *noBody) (*domain.PortalState, error) {
			return portalSvc.DeleteNeed(ctx, p, clientID, itemID)
		})
}

func addRequestHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return portalMutation("POST /api/agency/portal-state/{clientId}/requests", http.StatusCreated, true, 0, logger,
		func(ctx context.Context, p *domain.Principal, clientID, _ string, in *domain.RequestInput) (*domain.PortalState, error) {
			return portalSvc.AddRequest(ctx, p, clientID, in)
		})
}

func updateRequestHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return portalMutation("PATCH /api/agency/portal-state/{clientId}/requests/{id}", http.StatusOK, true, 0, logger,
		func(ctx context.Context, p *domain.Principal, clientID, itemID string, in *domain.RequestInput) (*domain.PortalState, error) {
			return portalSvc.UpdateRequest(ctx, p, clientID, itemID, in)
		})
}

func deleteRequestHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return portalMutation("DELETE /api/agency/portal-state/{clientId}/requests/{id}", http.StatusOK, false, 0, logger,
		func(ctx context.Context, p *domain.Principal, clientID, itemID string, _ *noBody) (*domain.PortalState, error) {
			return portalSvc.DeleteRequest(ctx, p, clientID, itemID)
		})
}

func addAssetHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return portalMutation("POST /api/agency/portal-state/{clientId}/assets", http.StatusCreated, true, 0, logger,
		func(ctx context.Context, p *domain.Principal, clientID, _ string, in *domain.AssetInput) (*domain.PortalState, error) {
			return portalSvc.AddAsset(ctx, p, clientID, in)
		})
}

func deleteAssetHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return portalMutation("DELETE /api/agency/portal-state/{clientId}/assets/{id}", http.StatusOK, false, 0, logger,
		func(ctx context.Context, p *domain.Principal, clientID, itemID string, _ *noBody) (*domain.PortalState, error) {
			return portalSvc.DeleteAsset(ctx, p, clientID, itemID)
		})
}

func setFrustrationHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return portalMutation("PUT /api/agency/portal-state/{clientId}/frustration", http.StatusOK, true, 0, logger,
		func(ctx context.Context, p *domain.Principal, clientID, _ string, in *domain.FrustrationInput) (*domain.PortalState, error) {
			return portalSvc.SetFrustration(ctx, p, clientID, in)
		})
}

// ============================================================
// 3c. Audit log
// ============================================================

func auditLogsHandler(auditSvc *service.AuditService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/agency/audit-logs")
		defer span.End()

		entries, err := auditSvc.List(ctx, PrincipalFromContext(ctx), parseLimit(r, 100, 500))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.AuditLog]{Data: entries, Total: len(entries)})
	}
}
