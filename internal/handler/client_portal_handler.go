package handler

import (
	"net/http"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 4. Client portal
// The client id always comes from the session, never from the request.
// ============================================================

func clientPortalStateHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/client/portal-state")
		defer span.End()

		p := PrincipalFromContext(ctx)
		st, err := portalSvc.Load(ctx, p, p.PortalClientID())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, st)
	}
}

func clientSavePortalStateHandler(portalSvc *service.PortalService, maxBody int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/client/portal-state")
		defer span.End()

		var st domain.PortalState
		if !decodeJSON(w, r, maxBody, &st) {
			return
		}

		updated, err := portalSvc.SaveFromClient(ctx, PrincipalFromContext(ctx), &st)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, updated)
	}
}

func clientDecideApprovalHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /api/client/approvals/{id}")
		defer span.End()

		var req domain.ApprovalDecision
		if !decodeJSON(w, r, 0, &req) {
			return
		}

		st, err := portalSvc.ClientDecideApproval(ctx, PrincipalFromContext(ctx), chi.URLParam(r, "itemId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, st)
	}
}

func clientCreateRequestHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/client/requests")
		defer span.End()

		var req domain.RequestInput
		if !decodeJSON(w, r, 0, &req) {
			return
		}

		st, err := portalSvc.ClientCreateRequest(ctx, PrincipalFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, st)
	}
}

func clientSeenHandler(portalSvc *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/client/seen")
		defer span.End()

		st, err := portalSvc.MarkSeen(ctx, PrincipalFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, st)
	}
}
