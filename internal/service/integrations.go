package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/port"
)

var integrationTracer = otel.Tracer("service/integrations")

// maxImportFiles bounds one import request.
const maxImportFiles = 50

// IntegrationService connects an agency to Google Drive and imports folder
// files into a client's content library as asset links.
type IntegrationService struct {
	store   port.IntegrationStore
	drive   port.DriveFetcher
	portal  *PortalService
	audit   *AuditService
	metrics Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewIntegrationService creates a new integration service.
func NewIntegrationService(store port.IntegrationStore, drive port.DriveFetcher, portal *PortalService, audit *AuditService, metrics Metrics, logger *zap.Logger) *IntegrationService {
	return &IntegrationService{
		store:   store,
		drive:   drive,
		portal:  portal,
		audit:   audit,
		metrics: metricsOrNop(metrics),
		logger:  logger,
		now:     time.Now,
	}
}

func (s *IntegrationService) Status(ctx context.Context, p *domain.Principal) (*domain.IntegrationStatus, error) {
	ctx, span := integrationTracer.Start(ctx, "IntegrationService.Status")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	in, err := s.store.GetIntegration(ctx, p.AgencyID, domain.ProviderGoogleDrive)
	if err != nil {
		return nil, fmt.Errorf("get integration: %w", err)
	}
	status := &domain.IntegrationStatus{Provider: domain.ProviderGoogleDrive}
	if in != nil {
		at := in.ConnectedAt
		status.Connected = true
		status.FolderID = in.FolderID
		status.ConnectedAt = &at
	}
	return status, nil
}

// Connect validates the token against the folder before storing it.
func (s *IntegrationService) Connect(ctx context.Context, p *domain.Principal, req *domain.ConnectDriveRequest) (*domain.IntegrationStatus, error) {
	ctx, span := integrationTracer.Start(ctx, "IntegrationService.Connect")
	defer span.End()

	if err := requireManager(p); err != nil {
		return nil, err
	}
	token := strings.TrimSpace(req.AccessToken)
	if token == "" {
		return nil, &domain.ErrValidation{Field: "accessToken", Message: "is required"}
	}
	folder := strings.TrimSpace(req.FolderID)
	if strings.ContainsAny(folder, `'\`) {
		return nil, &domain.ErrValidation{Field: "folderId", Message: "contains invalid characters"}
	}

	if _, err := s.drive.ListFiles(ctx, token, folder); err != nil {
		s.recordExternal(err)
		return nil, s.driveError(err)
	}

	in := &domain.Integration{
		AgencyID:    p.AgencyID,
		Provider:    domain.ProviderGoogleDrive,
		AccessToken: token,
		FolderID:    folder,
		ConnectedBy: p.UserID,
		ConnectedAt: s.now().UTC(),
	}
	if err := s.store.SaveIntegration(ctx, in); err != nil {
		return nil, fmt.Errorf("save integration: %w", err)
	}
	s.audit.Record(ctx, p.AgencyID, p.UserID, AuditIntegrationSet, domain.ProviderGoogleDrive, map[string]any{"folder_id": folder})

	at := in.ConnectedAt
	return &domain.IntegrationStatus{
		Provider:    domain.ProviderGoogleDrive,
		Connected:   true,
		FolderID:    folder,
		ConnectedAt: &at,
	}, nil
}

func (s *IntegrationService) Disconnect(ctx context.Context, p *domain.Principal) error {
	ctx, span := integrationTracer.Start(ctx, "IntegrationService.Disconnect")
	defer span.End()

	if err := requireManager(p); err != nil {
		return err
	}
	if err := s.store.DeleteIntegration(ctx, p.AgencyID, domain.ProviderGoogleDrive); err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	s.audit.Record(ctx, p.AgencyID, p.UserID, AuditIntegrationUnset, domain.ProviderGoogleDrive, nil)
	return nil
}

func (s *IntegrationService) ListFiles(ctx context.Context, p *domain.Principal) ([]domain.DriveFile, error) {
	ctx, span := integrationTracer.Start(ctx, "IntegrationService.ListFiles")
	defer span.End()

	in, err := s.connection(ctx, p)
	if err != nil {
		return nil, err
	}
	files, err := s.drive.ListFiles(ctx, in.AccessToken, in.FolderID)
	if err != nil {
		s.recordExternal(err)
		return nil, s.driveError(err)
	}
	if files == nil {
		files = []domain.DriveFile{}
	}
	return files, nil
}

// Import fetches file metadata concurrently and adds one asset link per file
// to the client's library. Files already linked are skipped.
func (s *IntegrationService) Import(ctx context.Context, p *domain.Principal, req *domain.ImportDriveRequest) (*domain.PortalState, int, error) {
	ctx, span := integrationTracer.Start(ctx, "IntegrationService.Import")
	defer span.End()

	if len(req.FileIDs) == 0 {
		return nil, 0, &domain.ErrValidation{Field: "fileIds", Message: "at least one file is required"}
	}
	if len(req.FileIDs) > maxImportFiles {
		return nil, 0, &domain.ErrValidation{Field: "fileIds", Message: fmt.Sprintf("at most %d files per import", maxImportFiles)}
	}
	in, err := s.connection(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	if _, err := s.portal.authorize(ctx, p, req.ClientID); err != nil {
		return nil, 0, err
	}

	files := make([]*domain.DriveFile, len(req.FileIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range req.FileIDs {
		i, id := i, id
		g.Go(func() error {
			f, err := s.drive.GetFile(gctx, in.AccessToken, id)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.recordExternal(err)
		return nil, 0, s.driveError(err)
	}

	assets := make([]domain.Asset, 0, len(files))
	for _, f := range files {
		link := f.WebViewLink
		if link == "" {
			link = "https://drive.google.com/file/d/" + f.ID + "/view"
		}
		assets = append(assets, domain.Asset{
			Title:  f.Name,
			URL:    link,
			Type:   assetTypeForMime(f.MimeType),
			Status: "imported",
			Tags:   cloneStrings(req.Tags),
		})
	}

	st, added, err := s.portal.AddAssets(ctx, p, req.ClientID, assets)
	if err != nil {
		return nil, 0, err
	}
	s.audit.Record(ctx, p.AgencyID, p.UserID, AuditDriveImport, req.ClientID, map[string]any{"files": len(files), "added": added})
	s.logger.Info("drive import",
		zap.String("agency_id", p.AgencyID),
		zap.String("client_id", req.ClientID),
		zap.Int("requested", len(files)),
		zap.Int("added", added),
	)
	return st, added, nil
}

func (s *IntegrationService) connection(ctx context.Context, p *domain.Principal) (*domain.Integration, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	in, err := s.store.GetIntegration(ctx, p.AgencyID, domain.ProviderGoogleDrive)
	if err != nil {
		return nil, fmt.Errorf("get integration: %w", err)
	}
	if in == nil {
		return nil, &domain.ErrValidation{Field: "provider", Message: "google drive is not connected"}
	}
	return in, nil
}

func (s *IntegrationService) recordExternal(err error) {
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		return
	}
	s.metrics.IncrExternalError(domain.ProviderGoogleDrive)
}

// driveError turns an upstream rejection of the stored token into a
// validation error the dashboard can show; other failures pass through.
func (s *IntegrationService) driveError(err error) error {
	var unauthorized *domain.ErrUnauthorized
	if errors.As(err, &unauthorized) {
		return &domain.ErrValidation{Field: "accessToken", Message: "google drive rejected the access token"}
	}
	return err
}

func assetTypeForMime(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return domain.AssetPhoto
	case strings.HasPrefix(mime, "video/"):
		return domain.AssetVideo
	default:
		return domain.AssetDoc
	}
}
