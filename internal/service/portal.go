package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/migration"
	"github.com/twofly/client-portal-go/internal/port"
)

var portalTracer = otel.Tracer("service/portal")

// PortalService loads, migrates, mutates and saves per-client portal documents.
// Every read-modify-write of one client's document runs under that client's lock.
type PortalService struct {
	store        port.PortalStore
	clients      port.ClientStore
	legacyAssets port.LegacyAssetStore
	cache        port.Cache[*domain.PortalState]
	metrics      Metrics
	maxDocBytes  int
	locks        *keyedMutex
	logger       *zap.Logger
	now          func() time.Time
}

// NewPortalService creates a new portal service. cache and legacyAssets may be nil.
func NewPortalService(store port.PortalStore, clients port.ClientStore, legacyAssets port.LegacyAssetStore, cache port.Cache[*domain.PortalState], metrics Metrics, maxDocBytes int, logger *zap.Logger) *PortalService {
	return &PortalService{
		store:        store,
		clients:      clients,
		legacyAssets: legacyAssets,
		cache:        cache,
		metrics:      metricsOrNop(metrics),
		maxDocBytes:  maxDocBytes,
		locks:        newKeyedMutex(),
		logger:       logger,
		now:          time.Now,
	}
}

// ============================================================
// Access
// ============================================================

// authorize resolves the client a principal wants to reach. Staff only see
// their agency's clients; a portal session only sees its own client. Clients
// of another agency are reported as not found.
func (s *PortalService) authorize(ctx context.Context, p *domain.Principal, clientID string) (*domain.Client, error) {
	if p == nil {
		return nil, &domain.ErrUnauthorized{Message: "authentication required"}
	}
	if clientID == "" {
		return nil, &domain.ErrValidation{Field: "clientId", Message: "is required"}
	}
	if bound := p.PortalClientID(); bound != "" && bound != clientID {
		return nil, &domain.ErrForbidden{Action: "portal session is bound to another client"}
	}

	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client == nil || client.AgencyID != p.AgencyID {
		return nil, &domain.ErrNotFound{Resource: "client", ID: clientID}
	}
	return client, nil
}

// ============================================================
// Load — GET /api/agency/portal-state, GET /api/client/portal-state
// ============================================================

// Load returns the client's portal document, migrating it first if needed.
func (s *PortalService) Load(ctx context.Context, p *domain.Principal, clientID string) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.Load")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	client, err := s.authorize(ctx, p, clientID)
	if err != nil {
		return nil, err
	}
	state, err := s.load(ctx, client)
	if err != nil {
		return nil, err
	}
	return clonePortal(state), nil
}

// load returns the cached document or reads it through the migration chain.
// The returned pointer is shared with the cache and must not be mutated.
func (s *PortalService) load(ctx context.Context, client *domain.Client) (*domain.PortalState, error) {
	if s.cache != nil {
		if st, ok := s.cache.Get(client.ID); ok {
			return st, nil
		}
	}

	unlock := s.locks.lock(client.ID)
	defer unlock()
	return s.loadLocked(ctx, client)
}

func (s *PortalService) loadLocked(ctx context.Context, client *domain.Client) (*domain.PortalState, error) {
	raw, err := s.store.GetPortalDocument(ctx, client.ID)
	if err != nil {
		return nil, fmt.Errorf("get portal document: %w", err)
	}
	s.metrics.IncrPortalLoad()

	now := s.now()
	var state *domain.PortalState
	changed := false

	if raw == nil {
		state = DefaultPortalState(client, now)
		changed = true
	} else {
		from := migration.Version(raw)
		doc, migrated, err := migration.Migrate(raw, from, now)
		if err != nil {
			return nil, err
		}
		if state, err = decodePortal(doc); err != nil {
			return nil, fmt.Errorf("decode portal document %s: %w", client.ID, err)
		}
		if migrated {
			s.metrics.IncrPortalMigration()
			s.logger.Info("portal: document migrated",
				zap.String("client_id", client.ID),
				zap.Int("from_version", from),
				zap.Int("to_version", migration.CurrentVersion),
			)
			changed = true
		}
	}

	if normalizePortal(state, client) {
		changed = true
	}
	if folded, err := s.foldLegacyAssets(ctx, state, now); err != nil {
		s.logger.Warn("portal: legacy assets not folded", zap.String("client_id", client.ID), zap.Error(err))
	} else if folded {
		changed = true
	}

	if changed {
		if err := s.store.SavePortalDocument(ctx, client.ID, state); err != nil {
			return nil, fmt.Errorf("save portal document: %w", err)
		}
		if s.legacyAssets != nil {
			if err := s.legacyAssets.DeleteLegacyAssets(ctx, client.ID); err != nil {
				s.logger.Warn("portal: legacy assets not removed", zap.String("client_id", client.ID), zap.Error(err))
			}
		}
	}

	if s.cache != nil {
		s.cache.Set(client.ID, state)
	}
	return state, nil
}

// foldLegacyAssets moves content-library entries from assets.json into the
// document, skipping ids it already holds.
func (s *PortalService) foldLegacyAssets(ctx context.Context, state *domain.PortalState, now time.Time) (bool, error) {
	if s.legacyAssets == nil {
		return false, nil
	}
	legacy, err := s.legacyAssets.ListLegacyAssets(ctx, state.Client.ID)
	if err != nil || len(legacy) == 0 {
		return false, err
	}

	have := make(map[string]bool, len(state.Assets))
	for _, a := range state.Assets {
		have[a.ID] = true
	}
	added := 0
	for _, a := range legacy {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if have[a.ID] {
			continue
		}
		a.ClientID = state.Client.ID
		if a.Tags == nil {
			a.Tags = []string{}
		}
		if a.UploadedDate == "" {
			a.UploadedDate = domain.FormatTimestamp(now)
		}
		state.Assets = append(state.Assets, a)
		added++
	}
	return added > 0, nil
}

// ============================================================
// Save — PUT /api/agency/portal-state (whole document)
// ============================================================

// Save replaces the whole document. Identity fields (client, agency, schema
// version) are forced, ids are assigned where missing and KPIs recomputed.
// Documents over the size limit have inline data: images stripped, reported
// as warnings.
func (s *PortalService) Save(ctx context.Context, p *domain.Principal, clientID string, incoming *domain.PortalState) (*domain.SaveResult, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.Save")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	if incoming == nil {
		return nil, &domain.ErrValidation{Field: "body", Message: "portal state is required"}
	}
	client, err := s.authorize(ctx, p, clientID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(client.ID)
	defer unlock()

	state := clonePortal(incoming)
	normalizePortal(state, client)
	if err := validatePortal(state); err != nil {
		return nil, err
	}
	now := s.now()
	state.KPIs = ComputeKPIs(state, now)
	state.UpdatedAt = domain.FormatTimestamp(now)

	warnings, err := s.fitSize(state)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, state); err != nil {
		return nil, err
	}
	for _, w := range warnings {
		s.logger.Warn("portal: document trimmed", zap.String("client_id", client.ID), zap.String("warning", w))
	}
	return &domain.SaveResult{State: clonePortal(state), Warnings: warnings}, nil
}

// mutate runs fn against a private copy of the document under the client lock,
// then recomputes KPIs and persists. fn may assume the document is normalized.
func (s *PortalService) mutate(ctx context.Context, p *domain.Principal, clientID string, fn func(state *domain.PortalState, now time.Time) error) (*domain.PortalState, error) {
	client, err := s.authorize(ctx, p, clientID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(client.ID)
	defer unlock()

	var current *domain.PortalState
	if s.cache != nil {
		current, _ = s.cache.Get(client.ID)
	}
	if current == nil {
		if current, err = s.loadLocked(ctx, client); err != nil {
			return nil, err
		}
	}

	state := clonePortal(current)
	now := s.now()
	if err := fn(state, now); err != nil {
		return nil, err
	}
	state.KPIs = ComputeKPIs(state, now)
	state.UpdatedAt = domain.FormatTimestamp(now)

	if err := s.checkSize(state); err != nil {
		s.logger.Warn("portal: mutation rejected, document over size limit",
			zap.String("client_id", client.ID), zap.Error(err))
		return nil, err
	}
	if err := s.persist(ctx, state); err != nil {
		return nil, err
	}
	return clonePortal(state), nil
}

func (s *PortalService) persist(ctx context.Context, state *domain.PortalState) error {
	if err := s.store.SavePortalDocument(ctx, state.Client.ID, state); err != nil {
		if s.cache != nil {
			s.cache.Delete(state.Client.ID)
		}
		return fmt.Errorf("save portal document: %w", err)
	}
	if s.cache != nil {
		s.cache.Set(state.Client.ID, state)
	}
	return nil
}

// fitSize strips inline data: payloads when the encoded document is over
// the limit. It fails only when the document is still too large afterwards.
func (s *PortalService) fitSize(state *domain.PortalState) ([]string, error) {
	if s.maxDocBytes <= 0 {
		return nil, nil
	}
	size, err := encodedSize(state)
	if err != nil {
		return nil, err
	}
	if size <= s.maxDocBytes {
		return nil, nil
	}

	stripped := stripInlineImages(state)
	var warnings []string
	if stripped > 0 {
		warnings = append(warnings, fmt.Sprintf("document exceeded %d bytes: removed %d inline image(s); upload them as asset links instead", s.maxDocBytes, stripped))
	}
	if size, err = encodedSize(state); err != nil {
		return nil, err
	}
	if size > s.maxDocBytes {
		return nil, &domain.ErrValidation{Field: "body", Message: fmt.Sprintf("portal document is %d bytes, limit is %d", size, s.maxDocBytes)}
	}
	return warnings, nil
}

// checkSize rejects an over-limit document and leaves stored inline images
// intact.
func (s *PortalService) checkSize(state *domain.PortalState) error {
	if s.maxDocBytes <= 0 {
		return nil
	}
	size, err := encodedSize(state)
	if err != nil {
		return err
	}
	if size <= s.maxDocBytes {
		return nil
	}
	return &domain.ErrValidation{
		Field:   "body",
		Message: fmt.Sprintf("portal document would be %d bytes, limit is %d; upload inline images as asset links instead", size, s.maxDocBytes),
	}
}

func encodedSize(state *domain.PortalState) (int, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("encode portal document: %w", err)
	}
	return len(raw), nil
}

func isInline(u string) bool {
	return strings.HasPrefix(strings.TrimSpace(u), "data:")
}

func stripInlineImages(state *domain.PortalState) int {
	n := 0
	for i := range state.Approvals {
		a := &state.Approvals[i]
		if isInline(a.ImageURL) {
			a.ImageURL = ""
			n++
		}
		kept := a.UploadedImages[:0]
		for _, img := range a.UploadedImages {
			if isInline(img) {
				n++
				continue
			}
			kept = append(kept, img)
		}
		a.UploadedImages = kept
	}
	kept := state.Assets[:0]
	for _, a := range state.Assets {
		if isInline(a.URL) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	state.Assets = kept
	return n
}

// ============================================================
// Overview — GET /api/agency/overview
// ============================================================

// Overview summarizes one client, or every client of the agency when
// clientID is empty. KPIs are recomputed at read time.
func (s *PortalService) Overview(ctx context.Context, p *domain.Principal, clientID string) ([]domain.PortalOverview, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.Overview")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}

	var clients []domain.Client
	if clientID != "" {
		c, err := s.authorize(ctx, p, clientID)
		if err != nil {
			return nil, err
		}
		clients = []domain.Client{*c}
	} else {
		var err error
		if clients, err = s.clients.ListClients(ctx, p.AgencyID); err != nil {
			return nil, fmt.Errorf("list clients: %w", err)
		}
	}

	out := make([]domain.PortalOverview, len(clients))
	now := s.now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range clients {
		i := i
		g.Go(func() error {
			st, err := s.load(gctx, &clients[i])
			if err != nil {
				return err
			}
			out[i] = overviewOf(&clients[i], st, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(a, b int) bool {
		return strings.ToLower(out[a].ClientName) < strings.ToLower(out[b].ClientName)
	})
	return out, nil
}

func overviewOf(client *domain.Client, st *domain.PortalState, now time.Time) domain.PortalOverview {
	open := 0
	for _, r := range st.Requests {
		if r.Status != domain.StatusDone {
			open++
		}
	}
	return domain.PortalOverview{
		ClientID:     client.ID,
		ClientName:   client.Name,
		KPIs:         ComputeKPIs(st, now),
		OpenRequests: open,
		LastActivity: st.LastActivity(),
		Seen:         st.Seen,
	}
}

// ============================================================
// Lifecycle hooks used by the client registry
// ============================================================

// Initialize writes the default document for a new client.
func (s *PortalService) Initialize(ctx context.Context, client *domain.Client) (*domain.PortalState, error) {
	unlock := s.locks.lock(client.ID)
	defer unlock()

	state := DefaultPortalState(client, s.now())
	if err := s.persist(ctx, state); err != nil {
		return nil, err
	}
	return clonePortal(state), nil
}

// SyncClientHeader copies name and whatsapp from the client record into the document.
func (s *PortalService) SyncClientHeader(ctx context.Context, client *domain.Client) error {
	unlock := s.locks.lock(client.ID)
	defer unlock()

	current, err := s.loadLocked(ctx, client)
	if err != nil {
		return err
	}
	if current.Client.Name == client.Name && current.Client.WhatsApp == client.WhatsApp {
		return nil
	}
	state := clonePortal(current)
	state.Client.Name = client.Name
	state.Client.WhatsApp = client.WhatsApp
	return s.persist(ctx, state)
}

// Remove deletes the client's document.
func (s *PortalService) Remove(ctx context.Context, clientID string) error {
	unlock := s.locks.lock(clientID)
	defer unlock()

	if s.cache != nil {
		s.cache.Delete(clientID)
	}
	return s.store.DeletePortalDocument(ctx, clientID)
}

// Invalidate drops one cached document.
func (s *PortalService) Invalidate(clientID string) {
	if s.cache != nil {
		s.cache.Delete(clientID)
	}
}

// InvalidateAll drops every cached document, e.g. after portal-state.json
// was edited outside the server.
func (s *PortalService) InvalidateAll() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// MigrateAll loads every stored document through the migration chain and
// reports how many documents were visited.
func (s *PortalService) MigrateAll(ctx context.Context) (int, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.MigrateAll")
	defer span.End()

	ids, err := s.store.ListPortalClientIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list portal documents: %w", err)
	}
	visited := 0
	for _, id := range ids {
		client, err := s.clients.GetClient(ctx, id)
		if err != nil {
			return visited, fmt.Errorf("get client: %w", err)
		}
		if client == nil {
			s.logger.Warn("portal: document without client record", zap.String("client_id", id))
			continue
		}
		s.Invalidate(id)
		if _, err := s.load(ctx, client); err != nil {
			return visited, fmt.Errorf("migrate %s: %w", id, err)
		}
		visited++
	}
	return visited, nil
}
