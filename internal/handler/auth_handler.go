package handler

import (
	"net/http"
	"time"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// 1. Authentication
// ============================================================

func sessionCookie(value string, expires time.Time, secure bool) *http.Cookie {
	c := &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		return c
	}
	c.Expires = expires
	c.MaxAge = int(time.Until(expires).Seconds())
	return c
}

func loginHandler(authSvc *service.AuthService, secure bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/login")
		defer span.End()

		var req domain.LoginRequest
		if !decodeJSON(w, r, 0, &req) {
			return
		}
		req.RemoteAddr = clientIP(r)

		resp, err := authSvc.Login(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		http.SetCookie(w, sessionCookie(resp.Token, resp.ExpiresAt, secure))
		writeJSON(w, http.StatusOK, resp)
	}
}

func clientLoginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/client-login")
		defer span.End()

		var req domain.ClientLoginRequest
		if !decodeJSON(w, r, 0, &req) {
			return
		}
		req.RemoteAddr = clientIP(r)

		resp, err := authSvc.ClientLogin(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// logoutHandler always clears the cookie, even without a valid session.
func logoutHandler(authSvc *service.AuthService, secure bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/logout")
		defer span.End()

		if p, err := resolvePrincipal(r, authSvc); err == nil {
			authSvc.Logout(ctx, p)
		} else {
			logger.Debug("logout without valid session", zap.Error(err))
		}

		http.SetCookie(w, sessionCookie("", time.Time{}, secure))
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "logged out"})
	}
}

func meHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/auth/me")
		defer span.End()

		user, err := authSvc.Me(ctx, PrincipalFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, user)
	}
}

func forgotPasswordHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/forgot-password")
		defer span.End()

		var req domain.ForgotPasswordRequest
		if !decodeJSON(w, r, 0, &req) {
			return
		}
		req.RemoteAddr = clientIP(r)

		resp, err := authSvc.ForgotPassword(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func resetPasswordHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auth/reset-password")
		defer span.End()

		var req domain.ResetPasswordRequest
		if !decodeJSON(w, r, 0, &req) {
			return
		}

		resp, err := authSvc.ResetPassword(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
