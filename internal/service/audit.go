package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/port"
)

var auditTracer = otel.Tracer("service/audit")

// Audit actions.
const (
	AuditLogin            = "auth.login"
	AuditLoginFailed      = "auth.login_failed"
	AuditClientLogin      = "auth.client_login"
	AuditLogout           = "auth.logout"
	AuditPasswordReset    = "auth.password_reset"
	AuditLegacyAuth       = "auth.legacy_header"
	AuditUserInvited      = "user.invited"
	AuditInviteAccepted   = "user.invite_accepted"
	AuditUserUpdated      = "user.updated"
	AuditUserDisabled     = "user.disabled"
	AuditClientCreated    = "client.created"
	AuditClientUpdated    = "client.updated"
	AuditClientDeleted    = "client.deleted"
	AuditCredentialSet    = "client.credential_set"
	AuditIntegrationSet   = "integration.connected"
	AuditIntegrationUnset = "integration.disconnected"
	AuditDriveImport      = "integration.drive_import"
)

// AuditService records security and registry events. Recording never fails
// the calling operation; store errors are logged.
type AuditService struct {
	store  port.AuditStore
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditService creates a new audit service.
func NewAuditService(store port.AuditStore, logger *zap.Logger) *AuditService {
	return &AuditService{store: store, logger: logger, now: time.Now}
}

// Record appends one entry.
func (s *AuditService) Record(ctx context.Context, agencyID, actorID, action, targetID string, metadata map[string]any) {
	if s == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.NewString(),
		AgencyID:  agencyID,
		ActorID:   actorID,
		Action:    action,
		TargetID:  targetID,
		Metadata:  metadata,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		s.logger.Warn("audit: failed to record entry",
			zap.String("action", action),
			zap.String("agency_id", agencyID),
			zap.Error(err),
		)
	}
}

// List returns the caller's agency log, newest first.
func (s *AuditService) List(ctx context.Context, p *domain.Principal, limit int) ([]domain.AuditLog, error) {
	ctx, span := auditTracer.Start(ctx, "AuditService.List")
	defer span.End()

	if err := requireManager(p); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListAudit(ctx, p.AgencyID, limit)
}
