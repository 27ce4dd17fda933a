package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/port"
)

const forgotPasswordMessage = "If an account exists for that email, a reset link has been sent"

// ============================================================
// ForgotPassword — POST /api/auth/forgot-password
// Always answers with the same message, whether or not the email exists.
// ============================================================

func (s *AuthService) ForgotPassword(ctx context.Context, req *domain.ForgotPasswordRequest) (*domain.SuccessResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.ForgotPassword")
	defer span.End()

	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "is required"}
	}
	if err := s.allow(ctx, "forgot-password", email+":"+req.RemoteAddr, forgotAttempts, forgotWindow); err != nil {
		return nil, err
	}

	resp := &domain.SuccessResponse{Message: forgotPasswordMessage}

	users, err := s.users.FindUsersByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	for i := range users {
		u := &users[i]
		if u.Status != domain.UserActive {
			continue
		}
		if req.AgencyID != "" && u.AgencyID != req.AgencyID {
			continue
		}

		raw, expiresAt, err := s.issueActionToken(ctx, domain.TokenReset, u, s.cfg.ResetTTL)
		if err != nil {
			return nil, err
		}
		link := s.cfg.AppBaseURL + "/reset-password?token=" + url.QueryEscape(raw)
		if err := s.notifier.SendPasswordReset(ctx, u, link); err != nil {
			s.logger.Error("forgot password: notify failed", zap.String("user_id", u.ID), zap.Error(err))
		}
		s.logger.Info("forgot password: reset token issued",
			zap.String("user_id", u.ID),
			zap.Time("expires_at", expiresAt),
		)
	}
	return resp, nil
}

// ============================================================
// ResetPassword — POST /api/auth/reset-password
// ============================================================

func (s *AuthService) ResetPassword(ctx context.Context, req *domain.ResetPasswordRequest) (*domain.SuccessResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.ResetPassword")
	defer span.End()

	if req.Token == "" {
		return nil, &domain.ErrValidation{Field: "token", Message: "is required"}
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	token, err := s.redeemActionToken(ctx, domain.TokenReset, req.Token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.UpdateUserChecked(ctx, token.UserID, func(u *domain.User) error {
		if u.Status == domain.UserDisabled {
			return &domain.ErrInvalidToken{}
		}
		u.PasswordHash = hash
		u.UpdatedAt = s.now().UTC()
		return nil
	}, nil)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, &domain.ErrInvalidToken{}
		}
		return nil, err
	}

	// Outstanding reset links die with the password they were meant to replace.
	if err := s.tokens.RevokeUserTokens(ctx, domain.TokenReset, user.ID, s.now()); err != nil {
		s.logger.Warn("reset password: revoke tokens failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.audit.Record(ctx, user.AgencyID, user.ID, AuditPasswordReset, user.ID, nil)
	s.logger.Info("reset password: success", zap.String("user_id", user.ID))

	return &domain.SuccessResponse{Message: "Password updated"}, nil
}

// ============================================================
// Action tokens (invite + reset)
// ============================================================

// issueActionToken stores the SHA-256 of a fresh random token and returns
// the raw value, which is never persisted.
func (s *AuthService) issueActionToken(ctx context.Context, kind domain.TokenKind, user *domain.User, ttl time.Duration) (string, time.Time, error) {
	return issueActionToken(ctx, s.tokens, s.now(), kind, user, ttl)
}

func (s *AuthService) redeemActionToken(ctx context.Context, kind domain.TokenKind, raw string) (*domain.ActionToken, error) {
	return redeemActionToken(ctx, s.tokens, s.now(), kind, raw)
}

func issueActionToken(ctx context.Context, tokens port.TokenStore, now time.Time, kind domain.TokenKind, user *domain.User, ttl time.Duration) (string, time.Time, error) {
	raw, err := generateToken()
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := now.Add(ttl).UTC()
	token := &domain.ActionToken{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    user.ID,
		AgencyID:  user.AgencyID,
		TokenHash: hashToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: now.UTC(),
	}
	if err := tokens.StoreToken(ctx, token); err != nil {
		return "", time.Time{}, fmt.Errorf("store %s token: %w", kind, err)
	}
	return raw, expiresAt, nil
}

// redeemActionToken validates and consumes a token exactly once. Unknown,
// expired and used tokens are indistinguishable to the caller.
func redeemActionToken(ctx context.Context, tokens port.TokenStore, now time.Time, kind domain.TokenKind, raw string) (*domain.ActionToken, error) {
	token, err := tokens.GetTokenByHash(ctx, kind, hashToken(raw))
	if err != nil {
		return nil, fmt.Errorf("get %s token: %w", kind, err)
	}
	if token == nil || token.UsedAt != nil || !now.Before(token.ExpiresAt) {
		return nil, &domain.ErrInvalidToken{}
	}
	if err := tokens.ConsumeToken(ctx, kind, token.ID, now); err != nil {
		return nil, err
	}
	return token, nil
}
