package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/port"
)

var clientTracer = otel.Tracer("service/clients")

const defaultClientStatus = "active"

// ClientService is the agency's client registry. Every client owns one
// portal document and at most one portal credential.
type ClientService struct {
	clients      port.ClientStore
	creds        port.CredentialStore
	legacyAssets port.LegacyAssetStore
	portal       *PortalService
	audit        *AuditService
	logger       *zap.Logger
	now          func() time.Time

	// createMu makes slug de-duplication and insert one step.
	createMu sync.Mutex
}

// NewClientService creates a new client service.
func NewClientService(clients port.ClientStore, creds port.CredentialStore, legacyAssets port.LegacyAssetStore, portal *PortalService, audit *AuditService, logger *zap.Logger) *ClientService {
	return &ClientService{
		clients:      clients,
		creds:        creds,
		legacyAssets: legacyAssets,
		portal:       portal,
		audit:        audit,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *ClientService) List(ctx context.Context, p *domain.Principal) ([]domain.Client, error) {
	ctx, span := clientTracer.Start(ctx, "ClientService.List")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	clients, err := s.clients.ListClients(ctx, p.AgencyID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

func (s *ClientService) Get(ctx context.Context, p *domain.Principal, clientID string) (*domain.Client, error) {
	ctx, span := clientTracer.Start(ctx, "ClientService.Get")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	return s.scoped(ctx, p.AgencyID, clientID)
}

func (s *ClientService) scoped(ctx context.Context, agencyID, clientID string) (*domain.Client, error) {
	c, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if c == nil || c.AgencyID != agencyID {
		return nil, &domain.ErrNotFound{Resource: "client", ID: clientID}
	}
	return c, nil
}

// ============================================================
// Create — POST /api/agency/clients
// ============================================================

// Create registers a client and writes its default portal document. When
// no id is given one is derived from the name and de-duplicated with a
// numeric suffix; an explicit id that is taken is a conflict.
func (s *ClientService) Create(ctx context.Context, p *domain.Principal, req *domain.CreateClientRequest) (*domain.Client, error) {
	ctx, span := clientTracer.Start(ctx, "ClientService.Create")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	return s.create(ctx, p.AgencyID, p.UserID, req)
}

// CreateForAgency creates a client without a principal; used by the admin CLI.
func (s *ClientService) CreateForAgency(ctx context.Context, agencyID string, req *domain.CreateClientRequest) (*domain.Client, error) {
	return s.create(ctx, agencyID, "", req)
}

func (s *ClientService) create(ctx context.Context, agencyID, actorID string, req *domain.CreateClientRequest) (*domain.Client, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "is required"}
	}
	var passwordHash string
	if req.Password != "" {
		h, err := HashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		passwordHash = h
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	id := strings.TrimSpace(req.ID)
	if id != "" {
		if !ValidSlug(id) {
			return nil, &domain.ErrValidation{Field: "id", Message: "must be lowercase letters, digits and hyphens"}
		}
	} else {
		base := Slugify(name)
		if base == "" {
			return nil, &domain.ErrValidation{Field: "name", Message: "must contain letters or digits"}
		}
		var err error
		id, err = uniqueSlug(base, func(candidate string) (bool, error) {
			return s.clients.ClientIDExists(ctx, candidate)
		})
		if err != nil {
			return nil, fmt.Errorf("derive client id: %w", err)
		}
	}

	now := s.now().UTC()
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = defaultClientStatus
	}
	client := &domain.Client{
		ID:          id,
		AgencyID:    agencyID,
		Name:        name,
		Status:      status,
		ContactName: strings.TrimSpace(req.ContactName),
		Email:       normalizeEmail(req.Email),
		Phone:       strings.TrimSpace(req.Phone),
		WhatsApp:    strings.TrimSpace(req.WhatsApp),
		Preferences: req.Preferences,
		LogoURL:     strings.TrimSpace(req.LogoURL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.clients.CreateClient(ctx, client); err != nil {
		return nil, err
	}

	if _, err := s.portal.Initialize(ctx, client); err != nil {
		s.rollbackCreate(ctx, client.ID)
		return nil, err
	}
	if passwordHash != "" {
		if err := s.creds.SetClientCredential(ctx, &domain.ClientCredential{
			AgencyID:     agencyID,
			ClientID:     client.ID,
			PasswordHash: passwordHash,
			UpdatedAt:    now,
		}); err != nil {
			s.rollbackCreate(ctx, client.ID)
			return nil, fmt.Errorf("set client credential: %w", err)
		}
	}

	s.audit.Record(ctx, agencyID, actorID, AuditClientCreated, client.ID, map[string]any{"name": name})
	s.logger.Info("client created", zap.String("client_id", client.ID), zap.String("agency_id", agencyID))
	return client, nil
}

func (s *ClientService) rollbackCreate(ctx context.Context, clientID string) {
	if err := s.portal.Remove(ctx, clientID); err != nil {
		s.logger.Warn("create client: rollback portal failed", zap.String("client_id", clientID), zap.Error(err))
	}
	if err := s.clients.DeleteClient(ctx, clientID); err != nil {
		s.logger.Warn("create client: rollback failed", zap.String("client_id", clientID), zap.Error(err))
	}
}

// ============================================================
// Update — PUT /api/agency/clients/{id}
// ============================================================

// Update merges the provided fields into the stored client. Omitted fields
// keep their value. Name and whatsapp are mirrored into the portal header.
func (s *ClientService) Update(ctx context.Context, p *domain.Principal, clientID string, req *domain.UpdateClientRequest) (*domain.Client, error) {
	ctx, span := clientTracer.Start(ctx, "ClientService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	client, err := s.scoped(ctx, p.AgencyID, clientID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, &domain.ErrValidation{Field: "name", Message: "must not be empty"}
		}
		client.Name = name
	}
	if req.Status != nil {
		client.Status = strings.TrimSpace(*req.Status)
	}
	if req.ContactName != nil {
		client.ContactName = strings.TrimSpace(*req.ContactName)
	}
	if req.Email != nil {
		client.Email = normalizeEmail(*req.Email)
	}
	if req.Phone != nil {
		client.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.WhatsApp != nil {
		client.WhatsApp = strings.TrimSpace(*req.WhatsApp)
	}
	if req.Preferences != nil {
		client.Preferences = *req.Preferences
	}
	if req.LogoURL != nil {
		client.LogoURL = strings.TrimSpace(*req.LogoURL)
	}
	client.UpdatedAt = s.now().UTC()

	if err := s.clients.UpdateClient(ctx, client); err != nil {
		return nil, err
	}
	if err := s.portal.SyncClientHeader(ctx, client); err != nil {
		s.logger.Warn("update client: portal header not synced", zap.String("client_id", clientID), zap.Error(err))
	}

	s.audit.Record(ctx, p.AgencyID, p.UserID, AuditClientUpdated, clientID, nil)
	return client, nil
}

// ============================================================
// Delete — DELETE /api/agency/clients/{id}
// ============================================================

// Delete removes the client with its portal document, credential and legacy
// assets. Dependent data is removed before the client record, so a failed
// delete can simply be retried.
func (s *ClientService) Delete(ctx context.Context, p *domain.Principal, clientID string) error {
	ctx, span := clientTracer.Start(ctx, "ClientService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	if err := requireManager(p); err != nil {
		return err
	}
	if _, err := s.scoped(ctx, p.AgencyID, clientID); err != nil {
		return err
	}

	if err := s.portal.Remove(ctx, clientID); err != nil {
		return fmt.Errorf("delete portal document: %w", err)
	}
	if err := s.creds.DeleteClientCredential(ctx, clientID); err != nil {
		return fmt.Errorf("delete client credential: %w", err)
	}
	if s.legacyAssets != nil {
		if err := s.legacyAssets.DeleteLegacyAssets(ctx, clientID); err != nil {
			return fmt.Errorf("delete legacy assets: %w", err)
		}
	}
	if err := s.clients.DeleteClient(ctx, clientID); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}

	s.audit.Record(ctx, p.AgencyID, p.UserID, AuditClientDeleted, clientID, nil)
	s.logger.Info("client deleted", zap.String("client_id", clientID), zap.String("agency_id", p.AgencyID))
	return nil
}

// ============================================================
// Credentials — PUT /api/agency/clients/{id}/credentials
// ============================================================

func (s *ClientService) SetPassword(ctx context.Context, p *domain.Principal, clientID string, req *domain.SetClientPasswordRequest) error {
	ctx, span := clientTracer.Start(ctx, "ClientService.SetPassword")
	defer span.End()

	if err := requireManager(p); err != nil {
		return err
	}
	if _, err := s.scoped(ctx, p.AgencyID, clientID); err != nil {
		return err
	}
	if err := s.setPassword(ctx, p.AgencyID, clientID, req.Password); err != nil {
		return err
	}
	s.audit.Record(ctx, p.AgencyID, p.UserID, AuditCredentialSet, clientID, nil)
	return nil
}

// SetPasswordForClient sets a portal password without a principal; used by
// the admin CLI.
func (s *ClientService) SetPasswordForClient(ctx context.Context, clientID, password string) error {
	c, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("get client: %w", err)
	}
	if c == nil {
		return &domain.ErrNotFound{Resource: "client", ID: clientID}
	}
	if err := s.setPassword(ctx, c.AgencyID, clientID, password); err != nil {
		return err
	}
	s.audit.Record(ctx, c.AgencyID, "", AuditCredentialSet, clientID, map[string]any{"via": "cli"})
	return nil
}

func (s *ClientService) setPassword(ctx context.Context, agencyID, clientID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.creds.SetClientCredential(ctx, &domain.ClientCredential{
		AgencyID:     agencyID,
		ClientID:     clientID,
		PasswordHash: hash,
		UpdatedAt:    s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("set client credential: %w", err)
	}
	return nil
}
