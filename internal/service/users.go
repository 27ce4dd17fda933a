package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/port"
)

var userTracer = otel.Tracer("service/users")

// UserService manages staff users: invites, updates and soft deletes.
type UserService struct {
	users      port.UserStore
	clients    port.ClientStore
	tokens     port.TokenStore
	audit      *AuditService
	notifier   Notifier
	inviteTTL  time.Duration
	appBaseURL string
	logger     *zap.Logger
	now        func() time.Time
}

// NewUserService creates a new user service.
func NewUserService(users port.UserStore, clients port.ClientStore, tokens port.TokenStore, audit *AuditService, notifier Notifier, inviteTTL time.Duration, appBaseURL string, logger *zap.Logger) *UserService {
	if notifier == nil {
		notifier = &LogNotifier{Logger: logger}
	}
	return &UserService{
		users:      users,
		clients:    clients,
		tokens:     tokens,
		audit:      audit,
		notifier:   notifier,
		inviteTTL:  inviteTTL,
		appBaseURL: appBaseURL,
		logger:     logger,
		now:        time.Now,
	}
}

// List returns the caller's agency users without password hashes.
func (s *UserService) List(ctx context.Context, p *domain.Principal) ([]domain.User, error) {
	ctx, span := userTracer.Start(ctx, "UserService.List")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	users, err := s.users.ListUsers(ctx, p.AgencyID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]domain.User, len(users))
	for i, u := range users {
		out[i] = u.Public()
	}
	return out, nil
}

// Get returns one user of the caller's agency. Disabled users stay retrievable.
func (s *UserService) Get(ctx context.Context, p *domain.Principal, userID string) (*domain.User, error) {
	ctx, span := userTracer.Start(ctx, "UserService.Get")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	u, err := s.scopedUser(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	pub := u.Public()
	return &pub, nil
}

func (s *UserService) scopedUser(ctx context.Context, p *domain.Principal, userID string) (*domain.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil || u.AgencyID != p.AgencyID {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	return u, nil
}

// ============================================================
// Update — PATCH /api/users/{id}
// ============================================================

// Update applies the provided fields. Managers may edit anyone in the agency
// (only an OWNER may grant or remove OWNER); any staff member may edit their
// own name, username and password.
func (s *UserService) Update(ctx context.Context, p *domain.Principal, userID string, req *domain.UpdateUserRequest) (*domain.User, error) {
	ctx, span := userTracer.Start(ctx, "UserService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	self := p.UserID == userID
	if !self || req.Role != nil || req.Status != nil || req.ClientID != nil {
		if err := requireManager(p); err != nil {
			return nil, err
		}
	}
	if _, err := s.scopedUser(ctx, p, userID); err != nil {
		return nil, err
	}

	var passwordHash string
	if req.Password != nil {
		h, err := HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		passwordHash = h
	}
	if req.ClientID != nil && *req.ClientID != "" {
		if err := s.checkClient(ctx, p.AgencyID, *req.ClientID); err != nil {
			return nil, err
		}
	}

	var wasActiveOwner bool
	updated, err := s.users.UpdateUserChecked(ctx, userID, func(u *domain.User) error {
		wasActiveOwner = isActiveOwner(u)

		if req.Role != nil {
			if !req.Role.Valid() {
				return &domain.ErrValidation{Field: "role", Message: "unknown role"}
			}
			if (*req.Role == domain.RoleOwner || u.Role == domain.RoleOwner) && p.Role != domain.RoleOwner {
				return &domain.ErrForbidden{Action: "only an owner can change owner roles"}
			}
			u.Role = *req.Role
		}
		if req.Status != nil {
			switch *req.Status {
			case domain.UserActive:
				if u.PasswordHash == "" && passwordHash == "" {
					return &domain.ErrValidation{Field: "status", Message: "user has no password yet"}
				}
			case domain.UserDisabled, domain.UserInvited:
			default:
				return &domain.ErrValidation{Field: "status", Message: "unknown status"}
			}
			u.Status = *req.Status
		}
		if req.Name != nil {
			u.Name = strings.TrimSpace(*req.Name)
		}
		if req.Username != nil {
			u.Username = strings.ToLower(strings.TrimSpace(*req.Username))
		}
		if req.ClientID != nil {
			u.ClientID = *req.ClientID
		}
		if u.Role == domain.RoleClient && u.ClientID == "" {
			return &domain.ErrValidation{Field: "clientId", Message: "is required for the CLIENT role"}
		}
		if passwordHash != "" {
			u.PasswordHash = passwordHash
			// An admin-set password activates an invited user.
			if u.Status == domain.UserInvited {
				u.Status = domain.UserActive
			}
		}
		u.UpdatedAt = s.now().UTC()
		return nil
	}, func(users []domain.User) error {
		return ensureActiveOwner(p.AgencyID, wasActiveOwner, users)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, p.AgencyID, p.UserID, AuditUserUpdated, userID, nil)
	pub := updated.Public()
	return &pub, nil
}

// ============================================================
// Delete — DELETE /api/users/{id} (soft delete)
// ============================================================

func (s *UserService) Delete(ctx context.Context, p *domain.Principal, userID string) (*domain.User, error) {
	ctx, span := userTracer.Start(ctx, "UserService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if err := requireManager(p); err != nil {
		return nil, err
	}
	target, err := s.scopedUser(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	if target.Role == domain.RoleOwner && p.Role != domain.RoleOwner {
		return nil, &domain.ErrForbidden{Action: "only an owner can remove an owner"}
	}

	var wasActiveOwner bool
	updated, err := s.users.UpdateUserChecked(ctx, userID, func(u *domain.User) error {
		wasActiveOwner = isActiveOwner(u)
		u.Status = domain.UserDisabled
		u.UpdatedAt = s.now().UTC()
		return nil
	}, func(users []domain.User) error {
		return ensureActiveOwner(p.AgencyID, wasActiveOwner, users)
	})
	if err != nil {
		return nil, err
	}

	if err := s.tokens.RevokeUserTokens(ctx, domain.TokenInvite, userID, s.now()); err != nil {
		s.logger.Warn("delete user: revoke invites failed", zap.String("user_id", userID), zap.Error(err))
	}
	if err := s.tokens.RevokeUserTokens(ctx, domain.TokenReset, userID, s.now()); err != nil {
		s.logger.Warn("delete user: revoke resets failed", zap.String("user_id", userID), zap.Error(err))
	}

	s.audit.Record(ctx, p.AgencyID, p.UserID, AuditUserDisabled, userID, nil)
	s.logger.Info("user disabled", zap.String("user_id", userID), zap.String("agency_id", p.AgencyID))
	pub := updated.Public()
	return &pub, nil
}

func isActiveOwner(u *domain.User) bool {
	return u.Role == domain.RoleOwner && u.Status == domain.UserActive
}

// ensureActiveOwner fails when a change to a previously active owner leaves
// the agency without one.
func ensureActiveOwner(agencyID string, wasActiveOwner bool, users []domain.User) error {
	if !wasActiveOwner {
		return nil
	}
	for i := range users {
		if isActiveOwner(&users[i]) {
			return nil
		}
	}
	return &domain.ErrLastOwner{AgencyID: agencyID}
}

func (s *UserService) checkClient(ctx context.Context, agencyID, clientID string) error {
	c, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("get client: %w", err)
	}
	if c == nil || c.AgencyID != agencyID {
		return &domain.ErrValidation{Field: "clientId", Message: "unknown client"}
	}
	return nil
}

// ============================================================
// Invites — POST /api/users/{invite,resend-invite,accept-invite}
// ============================================================

func (s *UserService) Invite(ctx context.Context, p *domain.Principal, req *domain.InviteUserRequest) (*domain.InviteResponse, error) {
	ctx, span := userTracer.Start(ctx, "UserService.Invite")
	defer span.End()

	if err := requireManager(p); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, &domain.ErrValidation{Field: "email", Message: "a valid email is required"}
	}
	role := req.Role
	if role == "" {
		role = domain.RoleStaff
	}
	if !role.Valid() {
		return nil, &domain.ErrValidation{Field: "role", Message: "unknown role"}
	}
	if role == domain.RoleOwner && p.Role != domain.RoleOwner {
		return nil, &domain.ErrForbidden{Action: "only an owner can invite an owner"}
	}
	if role == domain.RoleClient {
		if req.ClientID == "" {
			return nil, &domain.ErrValidation{Field: "clientId", Message: "is required for the CLIENT role"}
		}
		if err := s.checkClient(ctx, p.AgencyID, req.ClientID); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:        uuid.NewString(),
		AgencyID:  p.AgencyID,
		Email:     email,
		Username:  strings.ToLower(strings.TrimSpace(req.Username)),
		Name:      strings.TrimSpace(req.Name),
		Role:      role,
		Status:    domain.UserInvited,
		ClientID:  req.ClientID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	resp, err := s.sendInvite(ctx, user)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, p.AgencyID, p.UserID, AuditUserInvited, user.ID, map[string]any{"role": string(role)})
	s.logger.Info("user invited",
		zap.String("user_id", user.ID),
		zap.String("agency_id", p.AgencyID),
		zap.String("role", string(role)),
	)
	return resp, nil
}

// ResendInvite revokes outstanding invite tokens and issues a new one.
func (s *UserService) ResendInvite(ctx context.Context, p *domain.Principal, req *domain.ResendInviteRequest) (*domain.InviteResponse, error) {
	ctx, span := userTracer.Start(ctx, "UserService.ResendInvite")
	defer span.End()

	if err := requireManager(p); err != nil {
		return nil, err
	}
	user, err := s.scopedUser(ctx, p, req.UserID)
	if err != nil {
		return nil, err
	}
	if user.Status != domain.UserInvited {
		return nil, &domain.ErrValidation{Field: "userId", Message: "user is not awaiting an invite"}
	}
	if err := s.tokens.RevokeUserTokens(ctx, domain.TokenInvite, user.ID, s.now()); err != nil {
		return nil, fmt.Errorf("revoke invites: %w", err)
	}
	return s.sendInvite(ctx, user)
}

// IssueInvite creates a fresh invite link for an existing invited user
// without a principal; used by the admin CLI.
func (s *UserService) IssueInvite(ctx context.Context, user *domain.User) (*domain.InviteResponse, error) {
	return s.sendInvite(ctx, user)
}

func (s *UserService) sendInvite(ctx context.Context, user *domain.User) (*domain.InviteResponse, error) {
	raw, expiresAt, err := issueActionToken(ctx, s.tokens, s.now(), domain.TokenInvite, user, s.inviteTTL)
	if err != nil {
		return nil, err
	}
	link := s.appBaseURL + "/accept-invite?token=" + url.QueryEscape(raw)
	if err := s.notifier.SendInvite(ctx, user, link); err != nil {
		s.logger.Error("invite: notify failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return &domain.InviteResponse{
		User:      user.Public(),
		InviteURL: link,
		ExpiresAt: expiresAt,
	}, nil
}

// AcceptInvite consumes an invite token, sets the password and activates the user.
func (s *UserService) AcceptInvite(ctx context.Context, req *domain.AcceptInviteRequest) (*domain.User, error) {
	ctx, span := userTracer.Start(ctx, "UserService.AcceptInvite")
	defer span.End()

	if req.Token == "" {
		return nil, &domain.ErrValidation{Field: "token", Message: "is required"}
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	token, err := redeemActionToken(ctx, s.tokens, s.now(), domain.TokenInvite, req.Token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.UpdateUserChecked(ctx, token.UserID, func(u *domain.User) error {
		if u.Status != domain.UserInvited {
			return &domain.ErrInvalidToken{}
		}
		u.PasswordHash = hash
		u.Status = domain.UserActive
		if name := strings.TrimSpace(req.Name); name != "" {
			u.Name = name
		}
		if username := strings.ToLower(strings.TrimSpace(req.Username)); username != "" {
			u.Username = username
		}
		u.UpdatedAt = s.now().UTC()
		return nil
	}, nil)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, &domain.ErrInvalidToken{}
		}
		return nil, err
	}

	s.audit.Record(ctx, user.AgencyID, user.ID, AuditInviteAccepted, user.ID, nil)
	s.logger.Info("invite accepted", zap.String("user_id", user.ID), zap.String("agency_id", user.AgencyID))
	pub := user.Public()
	return &pub, nil
}
