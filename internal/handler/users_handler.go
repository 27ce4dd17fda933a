package handler

import (
	"net/http"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 2. Staff users
// ============================================================

func inviteUserHandler(userSvc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/users/invite")
		defer span.End()

		var req domain.InviteUserRequest
		if !decodeJSON(w, r, 0, &req) {
			return
		}

		resp, err := userSvc.Invite(ctx, PrincipalFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func resendInviteHandler(userSvc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/users/resend-invite")
		defer span.End()

		var req domain.ResendInviteRequest
		if !decodeJSON(w, r, 0, &req) {
			return
		}

		resp, err := userSvc.ResendInvite(ctx, PrincipalFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func acceptInviteHandler(userSvc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/users/accept-invite")
		defer span.End()

		var req domain.AcceptInviteRequest
		if !decodeJSON(w, r, 0, &req) {
			return
		}

		user, err := userSvc.AcceptInvite(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, user)
	}
}

func listUsersHandler(userSvc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/users")
		defer span.End()

		users, err := userSvc.List(ctx, PrincipalFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.User]{Data: users, Total: len(users)})
	}
}

func getUserHandler(userSvc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/users/{userId}")
		defer span.End()

		user, err := userSvc.Get(ctx, PrincipalFromContext(ctx), chi.URLParam(r, "userId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, user)
	}
}

func updateUserHandler(userSvc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /api/users/{userId}")
		defer span.End()

		var req domain.UpdateUserRequest
		if !decodeJSON(w, r, 0, &req) {
			return
		}

		user, err := userSvc.Update(ctx, PrincipalFromContext(ctx), chi.URLParam(r, "userId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, user)
	}
}

// deleteUserHandler disables the user; records are never hard-deleted.
func deleteUserHandler(userSvc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/users/{userId}")
		defer span.End()

		user, err := userSvc.Delete(ctx, PrincipalFromContext(ctx), chi.URLParam(r, "userId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, user)
	}
}
