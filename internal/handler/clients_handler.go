package handler

import (
	"net/http"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 3a. Client registry
// ============================================================

func listClientsHandler(clientSvc *service.ClientService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/agency/clients")
		defer span.End()

		clients, err := clientSvc.List(ctx, PrincipalFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Client]{Data: clients, Total: len(clients)})
	}
}

func createClientHandler(clientSvc *service.ClientService, maxBody int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/agency/clients")
		defer span.End()

		var req domain.CreateClientRequest
		if !decodeJSON(w, r, maxBody, &req) {
			return
		}

		client, err := clientSvc.Create(ctx, PrincipalFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, client)
	}
}

func getClientHandler(clientSvc *service.ClientService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/agency/clients/{clientId}")
		defer span.End()

		client, err := clientSvc.Get(ctx, PrincipalFromContext(ctx), chi.URLParam(r, "clientId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, client)
	}
}

func updateClientHandler(clientSvc *service.ClientService, maxBody int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/agency/clients/{clientId}")
		defer span.End()

		var req domain.UpdateClientRequest
		if !decodeJSON(w, r, maxBody, &req) {
			return
		}

		client, err := clientSvc.Update(ctx, PrincipalFromContext(ctx), chi.URLParam(r, "clientId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, client)
	}
}

func deleteClientHandler(clientSvc *service.ClientService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/agency/clients/{clientId}")
		defer span.End()

		clientID := chi.URLParam(r, "clientId")
		if err := clientSvc.Delete(ctx, PrincipalFromContext(ctx), clientID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "client deleted", ID: clientID})
	}
}

func setClientPasswordHandler(clientSvc *service.ClientService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/agency/clients/{clientId}/credentials")
		defer span.End()

		var req domain.SetClientPasswordRequest
		if !decodeJSON(w, r, 0, &req) {
			return
		}

		clientID := chi.URLParam(r, "clientId")
		if err := clientSvc.SetPassword(ctx, PrincipalFromContext(ctx), clientID, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "password updated", ID: clientID})
	}
}
