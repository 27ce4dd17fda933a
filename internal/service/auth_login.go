package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/twofly/client-portal-go/internal/domain"
)

// ============================================================
// Login — POST /api/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" {
		return nil, &domain.ErrValidation{Field: "identifier", Message: "email or username is required"}
	}
	if req.Password == "" {
		return nil, &domain.ErrValidation{Field: "password", Message: "is required"}
	}
	if req.AgencyID == "" {
		return nil, &domain.ErrValidation{Field: "agencyId", Message: "is required"}
	}
	span.SetAttributes(attribute.String("agency.id", req.AgencyID))

	limitKey := req.AgencyID + ":" + strings.ToLower(identifier) + ":" + req.RemoteAddr
	if err := s.allow(ctx, "login", limitKey, loginAttempts, loginWindow); err != nil {
		return nil, err
	}

	verified, err := s.verifiers[StrategyStaffPassword].Verify(ctx, Credentials{
		Identifier: identifier,
		Secret:     req.Password,
		AgencyID:   req.AgencyID,
	})
	if err != nil {
		if isAuthFailure(err) {
			s.metrics.IncrLogin(StrategyStaffPassword, "failure")
			s.audit.Record(ctx, req.AgencyID, "", AuditLoginFailed, "", map[string]any{"identifier": identifier})
			s.logger.Warn("login: rejected",
				zap.String("agency_id", req.AgencyID),
				zap.String("remote_addr", req.RemoteAddr),
			)
		}
		return nil, err
	}

	s.resetLimit(ctx, "login", limitKey)

	user := verified.User
	now := s.now().UTC()
	updated, err := s.users.UpdateUserChecked(ctx, user.ID, func(u *domain.User) error {
		u.LastLoginAt = &now
		return nil
	}, nil)
	if err != nil {
		s.logger.Warn("login: failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user = updated
	}

	token, expiresAt, err := s.issueSession(verified.Principal, PurposeStaff, s.cfg.StaffSessionTTL)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrLogin(StrategyStaffPassword, "success")
	s.audit.Record(ctx, user.AgencyID, user.ID, AuditLogin, user.ID, nil)
	s.logger.Info("login: success",
		zap.String("user_id", user.ID),
		zap.String("agency_id", user.AgencyID),
	)

	return &domain.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.Public(),
	}, nil
}

// ============================================================
// ClientLogin — POST /api/auth/client-login
// ============================================================

func (s *AuthService) ClientLogin(ctx context.Context, req *domain.ClientLoginRequest) (*domain.ClientLoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.ClientLogin")
	defer span.End()

	clientID := strings.ToLower(strings.TrimSpace(req.ClientID))
	if clientID == "" {
		return nil, &domain.ErrValidation{Field: "clientId", Message: "is required"}
	}
	if req.Password == "" {
		return nil, &domain.ErrValidation{Field: "password", Message: "is required"}
	}
	span.SetAttributes(attribute.String("client.id", clientID))

	limitKey := clientID + ":" + req.RemoteAddr
	if err := s.allow(ctx, "client-login", limitKey, loginAttempts, loginWindow); err != nil {
		return nil, err
	}

	verified, err := s.verifiers[StrategyClientPassword].Verify(ctx, Credentials{
		Identifier: clientID,
		Secret:     req.Password,
	})
	if err != nil {
		if isAuthFailure(err) {
			s.metrics.IncrLogin(StrategyClientPassword, "failure")
			s.logger.Warn("client login: rejected",
				zap.String("client_id", clientID),
				zap.String("remote_addr", req.RemoteAddr),
			)
		}
		return nil, err
	}

	s.resetLimit(ctx, "client-login", limitKey)

	token, _, err := s.issueSession(verified.Principal, PurposeClientPortal, s.cfg.ClientSessionTTL)
	if err != nil {
		return nil, err
	}

	p := verified.Principal
	s.metrics.IncrLogin(StrategyClientPassword, "success")
	s.audit.Record(ctx, p.AgencyID, "", AuditClientLogin, p.ClientID, nil)

	return &domain.ClientLoginResponse{
		Token:     token,
		ExpiresIn: int(s.cfg.ClientSessionTTL.Seconds()),
		ClientID:  p.ClientID,
		AgencyID:  p.AgencyID,
	}, nil
}

// Logout records the event. Sessions are stateless; the handler clears the cookie.
func (s *AuthService) Logout(ctx context.Context, p *domain.Principal) {
	if p == nil {
		return
	}
	s.audit.Record(ctx, p.AgencyID, p.UserID, AuditLogout, p.UserID, map[string]any{"kind": string(p.Kind)})
}

// ============================================================
// Me — GET /api/auth/me
// ============================================================

func (s *AuthService) Me(ctx context.Context, p *domain.Principal) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Me")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		if p.Legacy {
			return &domain.User{ID: p.UserID, AgencyID: p.AgencyID, Role: p.Role, Status: domain.UserActive}, nil
		}
		return nil, &domain.ErrNotFound{Resource: "user", ID: p.UserID}
	}
	pub := user.Public()
	return &pub, nil
}
