package handler

import (
	"net/http"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// 5. Google Drive integration
// ============================================================

type importResponse struct {
	Imported int                 `json:"imported"`
	State    *domain.PortalState `json:"state"`
}

func driveStatusHandler(svc *service.IntegrationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/integrations/google-drive/status")
		defer span.End()

		status, err := svc.Status(ctx, PrincipalFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, status)
	}
}

func driveConnectHandler(svc *service.IntegrationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/integrations/google-drive/connect")
		defer span.End()

		var req domain.ConnectDriveRequest
		if !decodeJSON(w, r, 0, &req) {
			return
		}

		status, err := svc.Connect(ctx, PrincipalFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, status)
	}
}

func driveDisconnectHandler(svc *service.IntegrationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/integrations/google-drive")
		defer span.End()

		if err := svc.Disconnect(ctx, PrincipalFromContext(ctx)); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "google drive disconnected"})
	}
}

func driveFilesHandler(svc *service.IntegrationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/integrations/google-drive/files")
		defer span.End()

		files, err := svc.ListFiles(ctx, PrincipalFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.DriveFile]{Data: files, Total: len(files)})
	}
}

func driveImportHandler(svc *service.IntegrationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/integrations/google-drive/import")
		defer span.End()

		var req domain.ImportDriveRequest
		if !decodeJSON(w, r, 0, &req) {
			return
		}

		st, n, err := svc.Import(ctx, PrincipalFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, importResponse{Imported: n, State: st})
	}
}
