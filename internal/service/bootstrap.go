package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/port"
)

// AdminService backs the portalctl commands. It runs without a principal
// and is never reachable over HTTP.
type AdminService struct {
	agencies port.AgencyStore
	users    port.UserStore
	creds    port.CredentialStore
	userSvc  *UserService
	clients  *ClientService
	portal   *PortalService
	audit    *AuditService
	logger   *zap.Logger
	now      func() time.Time
}

// NewAdminService creates a new admin service.
func NewAdminService(agencies port.AgencyStore, users port.UserStore, creds port.CredentialStore, userSvc *UserService, clients *ClientService, portal *PortalService, audit *AuditService, logger *zap.Logger) *AdminService {
	return &AdminService{
		agencies: agencies,
		users:    users,
		creds:    creds,
		userSvc:  userSvc,
		clients:  clients,
		portal:   portal,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateAdminInput describes a new agency and its first owner.
type CreateAdminInput struct {
	AgencyID   string
	AgencyName string
	Email      string
	Name       string
	Username   string
	Password   string // generated when empty
}

// CreateAdminResult is what the CLI prints.
type CreateAdminResult struct {
	Agency    domain.Agency
	User      domain.User
	Password  string
	Generated bool
}

// CreateAdmin creates the agency if it does not exist and adds an ACTIVE OWNER.
func (s *AdminService) CreateAdmin(ctx context.Context, in CreateAdminInput) (*CreateAdminResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, &domain.ErrValidation{Field: "email", Message: "a valid email is required"}
	}
	agencyName := strings.TrimSpace(in.AgencyName)
	agencyID := strings.TrimSpace(in.AgencyID)
	if agencyID == "" {
		agencyID = Slugify(agencyName)
	}
	if !ValidSlug(agencyID) {
		return nil, &domain.ErrValidation{Field: "agency", Message: "agency id must be lowercase letters, digits and hyphens"}
	}

	password, generated := in.Password, false
	if password == "" {
		var err error
		if password, err = generatePassword(); err != nil {
			return nil, err
		}
		generated = true
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	agency, err := s.agencies.GetAgency(ctx, agencyID)
	if err != nil {
		return nil, fmt.Errorf("get agency: %w", err)
	}
	now := s.now().UTC()
	if agency == nil {
		if agencyName == "" {
			agencyName = agencyID
		}
		agency = &domain.Agency{ID: agencyID, Name: agencyName, CreatedAt: now}
		if err := s.agencies.CreateAgency(ctx, agency); err != nil {
			return nil, err
		}
		s.logger.Info("agency created", zap.String("agency_id", agencyID))
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		AgencyID:     agencyID,
		Email:        email,
		Username:     strings.ToLower(strings.TrimSpace(in.Username)),
		Name:         strings.TrimSpace(in.Name),
		Role:         domain.RoleOwner,
		Status:       domain.UserActive,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, agencyID, "", AuditUserInvited, user.ID, map[string]any{"role": string(domain.RoleOwner), "via": "cli"})

	return &CreateAdminResult{Agency: *agency, User: user.Public(), Password: password, Generated: generated}, nil
}

// ResetAdmin sets a new password for an owner found by email or username
// and reactivates the account.
func (s *AdminService) ResetAdmin(ctx context.Context, agencyID, identifier, password string) (*domain.User, string, error) {
	generated := password == ""
	if generated {
		var err error
		if password, err = generatePassword(); err != nil {
			return nil, "", err
		}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	u, err := s.users.FindUserByIdentifier(ctx, agencyID, identifier)
	if err != nil {
		return nil, "", fmt.Errorf("find user: %w", err)
	}
	if u == nil || u.Role != domain.RoleOwner {
		return nil, "", &domain.ErrNotFound{Resource: "owner", ID: identifier}
	}

	updated, err := s.users.UpdateUserChecked(ctx, u.ID, func(u *domain.User) error {
		u.PasswordHash = hash
		u.Status = domain.UserActive
		u.UpdatedAt = s.now().UTC()
		return nil
	}, nil)
	if err != nil {
		return nil, "", err
	}
	s.audit.Record(ctx, agencyID, "", AuditPasswordReset, u.ID, map[string]any{"via": "cli"})

	pub := updated.Public()
	if !generated {
		password = ""
	}
	return &pub, password, nil
}

// SetupInput is CreateAdminInput plus an optional demo client.
type SetupInput struct {
	CreateAdminInput
	DemoClientName     string
	DemoClientPassword string
}

// SetupResult is what the setup command prints.
type SetupResult struct {
	*CreateAdminResult
	Client *domain.Client
}

// Setup bootstraps an empty installation: agency, owner and optionally a
// demo client with a portal password.
func (s *AdminService) Setup(ctx context.Context, in SetupInput) (*SetupResult, error) {
	admin, err := s.CreateAdmin(ctx, in.CreateAdminInput)
	if err != nil {
		return nil, err
	}
	res := &SetupResult{CreateAdminResult: admin}
	if strings.TrimSpace(in.DemoClientName) == "" {
		return res, nil
	}

	client, err := s.clients.CreateForAgency(ctx, admin.Agency.ID, &domain.CreateClientRequest{
		Name:     in.DemoClientName,
		Password: in.DemoClientPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("create demo client: %w", err)
	}
	res.Client = client
	return res, nil
}

// GenerateInvite creates an INVITED user (or reuses one) and returns the
// accept link.
func (s *AdminService) GenerateInvite(ctx context.Context, agencyID, email string, role domain.Role) (*domain.InviteResponse, error) {
	email = normalizeEmail(email)
	if role == "" {
		role = domain.RoleStaff
	}
	if !role.Valid() || role == domain.RoleClient {
		return nil, &domain.ErrValidation{Field: "role", Message: "must be OWNER, ADMIN or STAFF"}
	}
	agency, err := s.agencies.GetAgency(ctx, agencyID)
	if err != nil {
		return nil, fmt.Errorf("get agency: %w", err)
	}
	if agency == nil {
		return nil, &domain.ErrNotFound{Resource: "agency", ID: agencyID}
	}

	user, err := s.users.FindUserByIdentifier(ctx, agencyID, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	switch {
	case user == nil:
		now := s.now().UTC()
		user = &domain.User{
			ID:        uuid.NewString(),
			AgencyID:  agencyID,
			Email:     email,
			Role:      role,
			Status:    domain.UserInvited,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, err
		}
	case user.Status != domain.UserInvited:
		return nil, &domain.ErrConflict{Message: "user already exists: " + email}
	}

	resp, err := s.userSvc.IssueInvite(ctx, user)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, agencyID, "", AuditUserInvited, user.ID, map[string]any{"role": string(role), "via": "cli"})
	return resp, nil
}

// SetClientPassword sets a client's portal password.
func (s *AdminService) SetClientPassword(ctx context.Context, clientID, password string) error {
	return s.clients.SetPasswordForClient(ctx, clientID, password)
}

// MigrateResult reports what Migrate did.
type MigrateResult struct {
	Documents   int
	Credentials int
}

// Migrate upgrades every portal document to the current schema and hashes
// any remaining plaintext client credentials.
func (s *AdminService) Migrate(ctx context.Context) (*MigrateResult, error) {
	creds, err := s.creds.UpgradeLegacyCredentials(ctx, HashLegacyPassword)
	if err != nil {
		return nil, fmt.Errorf("upgrade credentials: %w", err)
	}
	docs, err := s.portal.MigrateAll(ctx)
	if err != nil {
		return nil, err
	}
	return &MigrateResult{Documents: docs, Credentials: creds}, nil
}

func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
