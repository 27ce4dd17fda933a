package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/port"
)

var authTracer = otel.Tracer("service/auth")

// Session purposes carried in the JWT.
const (
	PurposeStaff        = "staff"
	PurposeClientPortal = "client-portal"
)

// Rate limits.
const (
	loginAttempts  = 5
	loginWindow    = 15 * time.Minute
	forgotAttempts = 3
	forgotWindow   = time.Hour
)

// AuthConfig holds session and token lifetimes.
type AuthConfig struct {
	JWTSecret        string
	StaffSessionTTL  time.Duration
	ClientSessionTTL time.Duration
	ResetTTL         time.Duration
	AppBaseURL       string
	LegacyHeaderAuth bool
}

// sessionClaims are the JWT claims of both session kinds. Subject is the
// user id for staff sessions and the client id for portal sessions.
type sessionClaims struct {
	Purpose  string      `json:"purpose"`
	AgencyID string      `json:"agencyId"`
	ClientID string      `json:"clientId,omitempty"`
	Role     domain.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthService orchestrates authentication flows.
type AuthService struct {
	users     port.UserStore
	clients   port.ClientStore
	tokens    port.TokenStore
	legacy    port.LegacyStaffStore
	limiter   port.RateLimiter
	verifiers map[string]CredentialVerifier
	audit     *AuditService
	notifier  Notifier
	metrics   Metrics
	cfg       AuthConfig
	jwtSecret []byte
	logger    *zap.Logger
	now       func() time.Time
}

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Users       port.UserStore
	Clients     port.ClientStore
	Credentials port.CredentialStore
	Tokens      port.TokenStore
	Legacy      port.LegacyStaffStore
	Limiter     port.RateLimiter
	Audit       *AuditService
	Notifier    Notifier
	Metrics     Metrics
}

// NewAuthService creates a new auth service with the staff-password and
// client-password strategies registered.
func NewAuthService(deps AuthDeps, cfg AuthConfig, logger *zap.Logger) *AuthService {
	s := &AuthService{
		users:     deps.Users,
		clients:   deps.Clients,
		tokens:    deps.Tokens,
		legacy:    deps.Legacy,
		limiter:   deps.Limiter,
		audit:     deps.Audit,
		notifier:  deps.Notifier,
		metrics:   metricsOrNop(deps.Metrics),
		cfg:       cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		logger:    logger,
		now:       time.Now,
		verifiers: map[string]CredentialVerifier{},
	}
	if s.notifier == nil {
		s.notifier = &LogNotifier{Logger: logger}
	}
	s.RegisterVerifier(NewStaffPasswordVerifier(deps.Users))
	s.RegisterVerifier(NewClientPasswordVerifier(deps.Clients, deps.Credentials))
	return s
}

// RegisterVerifier adds or replaces a credential strategy.
func (s *AuthService) RegisterVerifier(v CredentialVerifier) {
	s.verifiers[v.Strategy()] = v
}

// LegacyHeaderAuthEnabled reports whether X-User-Id/X-Workspace-Id headers
// are accepted.
func (s *AuthService) LegacyHeaderAuthEnabled() bool {
	return s.cfg.LegacyHeaderAuth
}

// StaffSessionTTL is the staff cookie lifetime.
func (s *AuthService) StaffSessionTTL() time.Duration {
	return s.cfg.StaffSessionTTL
}

// ============================================================
// Session tokens
// ============================================================

func (s *AuthService) issueSession(p domain.Principal, purpose string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)

	subject := p.UserID
	if purpose == PurposeClientPortal {
		subject = p.ClientID
	}
	claims := sessionClaims{
		Purpose:  purpose,
		AgencyID: p.AgencyID,
		ClientID: p.ClientID,
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "2fly-portal",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *AuthService) parseSession(tokenStr string) (*sessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer("2fly-portal"))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired session"}
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired session"}
	}
	return claims, nil
}

// ValidateStaffSession resolves a staff cookie token. The user is re-read so
// disabling an account or changing its role takes effect immediately.
func (s *AuthService) ValidateStaffSession(ctx context.Context, tokenStr string) (*domain.Principal, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.ValidateStaffSession")
	defer span.End()

	claims, err := s.parseSession(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != PurposeStaff {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired session"}
	}

	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || user.AgencyID != claims.AgencyID {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired session"}
	}
	if user.Status != domain.UserActive {
		return nil, &domain.ErrAccountInactive{Status: user.Status}
	}

	return &domain.Principal{
		Kind:     domain.PrincipalStaff,
		UserID:   user.ID,
		AgencyID: user.AgencyID,
		ClientID: user.ClientID,
		Role:     user.Role,
	}, nil
}

// ValidateClientSession resolves a client-portal bearer token. Tokens of a
// deleted client stop working.
func (s *AuthService) ValidateClientSession(ctx context.Context, tokenStr string) (*domain.Principal, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.ValidateClientSession")
	defer span.End()

	claims, err := s.parseSession(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != PurposeClientPortal || claims.ClientID == "" {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired session"}
	}

	client, err := s.clients.GetClient(ctx, claims.ClientID)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client == nil || client.AgencyID != claims.AgencyID {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired session"}
	}

	return &domain.Principal{
		Kind:     domain.PrincipalClient,
		AgencyID: client.AgencyID,
		ClientID: client.ID,
		Role:     domain.RoleClient,
	}, nil
}

// ResolveLegacyHeaders implements the pre-session X-User-Id/X-Workspace-Id
// scheme. A known, active staff record keeps its role; an unknown one is
// admitted as STAFF of the workspace without any password check. Only
// reachable when LEGACY_HEADER_AUTH is on.
func (s *AuthService) ResolveLegacyHeaders(ctx context.Context, workspaceID, userID string) (*domain.Principal, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.ResolveLegacyHeaders")
	defer span.End()
	span.SetAttributes(attribute.String("workspace.id", workspaceID))

	if !s.cfg.LegacyHeaderAuth {
		return nil, &domain.ErrUnauthorized{Message: "authentication required"}
	}
	if workspaceID == "" || userID == "" {
		return nil, &domain.ErrUnauthorized{Message: "authentication required"}
	}

	p := &domain.Principal{
		Kind:     domain.PrincipalStaff,
		UserID:   userID,
		AgencyID: workspaceID,
		Role:     domain.RoleStaff,
		Legacy:   true,
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil && s.legacy != nil {
		if user, err = s.legacy.GetLegacyStaff(ctx, workspaceID, userID); err != nil {
			return nil, fmt.Errorf("get legacy staff: %w", err)
		}
	}

	switch {
	case user == nil:
		s.logger.Warn("legacy header auth: unknown staff admitted",
			zap.String("agency_id", workspaceID),
			zap.String("user_id", userID),
		)
	case user.AgencyID != workspaceID:
		return nil, &domain.ErrUnauthorized{Message: "authentication required"}
	case user.Status != domain.UserActive:
		return nil, &domain.ErrAccountInactive{Status: user.Status}
	default:
		p.Role = user.Role
		p.ClientID = user.ClientID
		s.logger.Warn("legacy header auth used",
			zap.String("agency_id", workspaceID),
			zap.String("user_id", userID),
		)
	}
	s.audit.Record(ctx, workspaceID, userID, AuditLegacyAuth, userID, nil)
	return p, nil
}

// ============================================================
// Rate limiting
// ============================================================

// allow consults the limiter. A limiter failure lets the request through and
// is logged, so a Redis outage does not lock everybody out.
func (s *AuthService) allow(ctx context.Context, action, key string, limit int, window time.Duration) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, action+":"+key, limit, window)
	if err != nil {
		s.logger.Warn("rate limiter unavailable", zap.String("action", action), zap.Error(err))
		return nil
	}
	if !ok {
		s.metrics.IncrRateLimited(action)
		return &domain.ErrRateLimited{Action: action}
	}
	return nil
}

func (s *AuthService) resetLimit(ctx context.Context, action, key string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Reset(ctx, action+":"+key); err != nil {
		s.logger.Warn("rate limiter reset failed", zap.String("action", action), zap.Error(err))
	}
}

func isAuthFailure(err error) bool {
	var unauth *domain.ErrUnauthorized
	var inactive *domain.ErrAccountInactive
	return errors.As(err, &unauth) || errors.As(err, &inactive)
}
