package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/twofly/client-portal-go/internal/domain"
)

// Mutations made by staff mark the document unseen so the client portal can
// flag new content; mutations made through a portal session do not.

// ============================================================
// Approvals
// ============================================================

func (s *PortalService) AddApproval(ctx context.Context, p *domain.Principal, clientID string, in *domain.ApprovalInput) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.AddApproval")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	title := trimmed(in.Title)
	if title == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "is required"}
	}
	status := domain.ApprovalPending
	if in.Status != nil {
		status = *in.Status
	}
	if !domain.ValidApprovalStatus(status) {
		return nil, &domain.ErrValidation{Field: "status", Message: "unknown approval status"}
	}

	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		a := domain.Approval{
			ID:          uuid.NewString(),
			Title:       title,
			Status:      status,
			ChangeNotes: []string{},
			Tags:        []string{},
		}
		applyApproval(&a, in)
		if a.Date == "" {
			a.Date = now.UTC().Format(dateOnly)
		}
		st.Approvals = append(st.Approvals, a)
		st.Seen = false
		logActivity(st, now, "Approval added: %s", a.Title)
		return nil
	})
}

func (s *PortalService) UpdateApproval(ctx context.Context, p *domain.Principal, clientID, approvalID string, in *domain.ApprovalInput) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.UpdateApproval")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	if in.Title != nil && trimmed(in.Title) == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "must not be empty"}
	}
	if in.Status != nil && !domain.ValidApprovalStatus(*in.Status) {
		return nil, &domain.ErrValidation{Field: "status", Message: "unknown approval status"}
	}

	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		a := findApproval(st, approvalID)
		if a == nil {
			return &domain.ErrNotFound{Resource: "approval", ID: approvalID}
		}
		before := a.Status
		if in.Title != nil {
			a.Title = trimmed(in.Title)
		}
		if in.Status != nil {
			a.Status = *in.Status
		}
		applyApproval(a, in)
		st.Seen = false
		if a.Status != before {
			logActivity(st, now, "Approval %q moved to %s", a.Title, displayStatus(a.Status))
		} else {
			logActivity(st, now, "Approval updated: %s", a.Title)
		}
		return nil
	})
}

func (s *PortalService) DeleteApproval(ctx context.Context, p *domain.Principal, clientID, approvalID string) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.DeleteApproval")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		for i, a := range st.Approvals {
			if a.ID == approvalID {
				st.Approvals = append(st.Approvals[:i], st.Approvals[i+1:]...)
				logActivity(st, now, "Approval removed: %s", a.Title)
				return nil
			}
		}
		return &domain.ErrNotFound{Resource: "approval", ID: approvalID}
	})
}

// applyApproval copies the optional content fields. Title and status are
// handled by the callers since their rules differ between create and update.
func applyApproval(a *domain.Approval, in *domain.ApprovalInput) {
	if in.Type != nil {
		a.Type = strings.TrimSpace(*in.Type)
	}
	if in.Date != nil {
		a.Date = strings.TrimSpace(*in.Date)
	}
	if in.PostDate != nil {
		a.PostDate = strings.TrimSpace(*in.PostDate)
	}
	if in.CopyText != nil {
		a.CopyText = *in.CopyText
	}
	if in.Caption != nil {
		a.Caption = *in.Caption
	}
	if in.ImageURL != nil {
		a.ImageURL = strings.TrimSpace(*in.ImageURL)
	}
	if in.UploadedImages != nil {
		a.UploadedImages = cloneStrings(*in.UploadedImages)
	}
	if in.Tags != nil {
		a.Tags = cloneStrings(*in.Tags)
		if a.Tags == nil {
			a.Tags = []string{}
		}
	}
	if note := strings.TrimSpace(in.ChangeNote); note != "" {
		a.ChangeNotes = append(a.ChangeNotes, note)
	}
}

func findApproval(st *domain.PortalState, id string) *domain.Approval {
	for i := range st.Approvals {
		if st.Approvals[i].ID == id {
			return &st.Approvals[i]
		}
	}
	return nil
}

func displayStatus(status string) string {
	if status == "" {
		return domain.ApprovalPending
	}
	return strings.ReplaceAll(status, "_", " ")
}

// ============================================================
// Needs
// ============================================================

func (s *PortalService) AddNeed(ctx context.Context, p *domain.Principal, clientID string, in *domain.NeedInput) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.AddNeed")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	text := trimmed(in.Text)
	if text == "" {
		return nil, &domain.ErrValidation{Field: "text", Message: "is required"}
	}
	severity := domain.SeverityWarn
	if in.Severity != nil {
		severity = *in.Severity
	}
	if severity != domain.SeverityWarn && severity != domain.SeverityBad {
		return nil, &domain.ErrValidation{Field: "severity", Message: "must be warn or bad"}
	}

	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		st.Needs = append(st.Needs, domain.Need{
			ID:        uuid.NewString(),
			Text:      text,
			Severity:  severity,
			Status:    domain.StatusOpen,
			CreatedAt: domain.FormatTimestamp(now),
		})
		st.Seen = false
		logActivity(st, now, "New need: %s", text)
		return nil
	})
}

func (s *PortalService) UpdateNeed(ctx context.Context, p *domain.Principal, clientID, needID string, in *domain.NeedInput) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.UpdateNeed")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	if in.Text != nil && trimmed(in.Text) == "" {
		return nil, &domain.ErrValidation{Field: "text", Message: "must not be empty"}
	}
	if in.Severity != nil && *in.Severity != domain.SeverityWarn && *in.Severity != domain.SeverityBad {
		return nil, &domain.ErrValidation{Field: "severity", Message: "must be warn or bad"}
	}
	if in.Status != nil {
		if err := validateOpenDone(*in.Status); err != nil {
			return nil, &domain.ErrValidation{Field: "status", Message: err.Error()}
		}
	}

	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		var n *domain.Need
		for i := range st.Needs {
			if st.Needs[i].ID == needID {
				n = &st.Needs[i]
				break
			}
		}
		if n == nil {
			return &domain.ErrNotFound{Resource: "need", ID: needID}
		}
		if in.Text != nil {
			n.Text = trimmed(in.Text)
		}
		if in.Severity != nil {
			n.Severity = *in.Severity
		}
		if in.Status != nil && *in.Status != n.Status {
			n.Status = *in.Status
			n.DoneAt = doneAt(n.Status, now)
			if n.Status == domain.StatusDone {
				logActivity(st, now, "Need resolved: %s", n.Text)
			} else {
				logActivity(st, now, "Need reopened: %s", n.Text)
			}
		}
		st.Seen = false
		return nil
	})
}

func (s *PortalService) DeleteNeed(ctx context.Context, p *domain.Principal, clientID, needID string) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.DeleteNeed")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		for i, n := range st.Needs {
			if n.ID == needID {
				st.Needs = append(st.Needs[:i], st.Needs[i+1:]...)
				logActivity(st, now, "Need removed: %s", n.Text)
				return nil
			}
		}
		return &domain.ErrNotFound{Resource: "need", ID: needID}
	})
}

func doneAt(status string, now time.Time) string {
	if status == domain.StatusDone {
		return domain.FormatTimestamp(now)
	}
	return ""
}

// ============================================================
// Requests
// ============================================================

func (s *PortalService) AddRequest(ctx context.Context, p *domain.Principal, clientID string, in *domain.RequestInput) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.AddRequest")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	by := "agency"
	if b := trimmed(in.By); b != "" {
		by = b
	}
	return s.addRequest(ctx, p, clientID, in, by, true)
}

// ClientCreateRequest files a request from the client portal.
func (s *PortalService) ClientCreateRequest(ctx context.Context, p *domain.Principal, in *domain.RequestInput) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.ClientCreateRequest")
	defer span.End()

	clientID, err := portalSessionClient(p)
	if err != nil {
		return nil, err
	}
	return s.addRequest(ctx, p, clientID, in, "client", false)
}

func (s *PortalService) addRequest(ctx context.Context, p *domain.Principal, clientID string, in *domain.RequestInput, by string, byAgency bool) (*domain.PortalState, error) {
	reqType := trimmed(in.Type)
	details := trimmed(in.Details)
	if reqType == "" {
		return nil, &domain.ErrValidation{Field: "type", Message: "is required"}
	}
	if details == "" {
		return nil, &domain.ErrValidation{Field: "details", Message: "is required"}
	}

	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		st.Requests = append(st.Requests, domain.Request{
			ID:        uuid.NewString(),
			Type:      reqType,
			Details:   details,
			By:        by,
			Status:    domain.StatusOpen,
			CreatedAt: domain.FormatTimestamp(now),
		})
		if byAgency {
			st.Seen = false
		}
		logActivity(st, now, "New request (%s) by %s", reqType, by)
		return nil
	})
}

func (s *PortalService) UpdateRequest(ctx context.Context, p *domain.Principal, clientID, requestID string, in *domain.RequestInput) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.UpdateRequest")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	if in.Status != nil {
		if err := validateOpenDone(*in.Status); err != nil {
			return nil, &domain.ErrValidation{Field: "status", Message: err.Error()}
		}
	}

	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		var r *domain.Request
		for i := range st.Requests {
			if st.Requests[i].ID == requestID {
				r = &st.Requests[i]
				break
			}
		}
		if r == nil {
			return &domain.ErrNotFound{Resource: "request", ID: requestID}
		}
		if v := trimmed(in.Type); v != "" {
			r.Type = v
		}
		if v := trimmed(in.Details); v != "" {
			r.Details = v
		}
		if in.Status != nil && *in.Status != r.Status {
			r.Status = *in.Status
			r.DoneAt = doneAt(r.Status, now)
			if r.Status == domain.StatusDone {
				logActivity(st, now, "Request completed: %s", r.Type)
			} else {
				logActivity(st, now, "Request reopened: %s", r.Type)
			}
		}
		st.Seen = false
		return nil
	})
}

func (s *PortalService) DeleteRequest(ctx context.Context, p *domain.Principal, clientID, requestID string) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.DeleteRequest")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		for i, r := range st.Requests {
			if r.ID == requestID {
				st.Requests = append(st.Requests[:i], st.Requests[i+1:]...)
				logActivity(st, now, "Request removed: %s", r.Type)
				return nil
			}
		}
		return &domain.ErrNotFound{Resource: "request", ID: requestID}
	})
}

// ============================================================
// Assets
// ============================================================

func (s *PortalService) AddAsset(ctx context.Context, p *domain.Principal, clientID string, in *domain.AssetInput) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.AddAsset")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	asset, err := newAsset(clientID, in)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		asset.UploadedDate = domain.FormatTimestamp(now)
		st.Assets = append(st.Assets, *asset)
		st.Seen = false
		logActivity(st, now, "Asset added: %s", asset.Title)
		return nil
	})
}

// AddAssets appends several assets in one write, skipping URLs already in
// the library. It returns the document and how many assets were added.
func (s *PortalService) AddAssets(ctx context.Context, p *domain.Principal, clientID string, assets []domain.Asset) (*domain.PortalState, int, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.AddAssets")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, 0, err
	}
	added := 0
	st, err := s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		have := make(map[string]bool, len(st.Assets))
		for _, a := range st.Assets {
			have[a.URL] = true
		}
		for _, a := range assets {
			if a.URL == "" || have[a.URL] {
				continue
			}
			have[a.URL] = true
			if a.ID == "" {
				a.ID = uuid.NewString()
			}
			a.ClientID = clientID
			if a.Tags == nil {
				a.Tags = []string{}
			}
			a.UploadedDate = domain.FormatTimestamp(now)
			st.Assets = append(st.Assets, a)
			added++
		}
		if added == 0 {
			return nil
		}
		st.Seen = false
		logActivity(st, now, "%d asset(s) imported", added)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return st, added, nil
}

func (s *PortalService) DeleteAsset(ctx context.Context, p *domain.Principal, clientID, assetID string) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.DeleteAsset")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		for i, a := range st.Assets {
			if a.ID == assetID {
				st.Assets = append(st.Assets[:i], st.Assets[i+1:]...)
				logActivity(st, now, "Asset removed: %s", a.Title)
				return nil
			}
		}
		return &domain.ErrNotFound{Resource: "asset", ID: assetID}
	})
}

func newAsset(clientID string, in *domain.AssetInput) (*domain.Asset, error) {
	title := strings.TrimSpace(in.Title)
	url := strings.TrimSpace(in.URL)
	if url == "" {
		return nil, &domain.ErrValidation{Field: "url", Message: "is required"}
	}
	if isInline(url) {
		return nil, &domain.ErrValidation{Field: "url", Message: "inline data is not accepted, provide a link"}
	}
	assetType := in.Type
	if assetType == "" {
		assetType = domain.AssetPhoto
	}
	if !domain.ValidAssetType(assetType) {
		return nil, &domain.ErrValidation{Field: "type", Message: "must be photo, video, logo or doc"}
	}
	if title == "" {
		title = url
	}
	tags := cloneStrings(in.Tags)
	if tags == nil {
		tags = []string{}
	}
	return &domain.Asset{
		ID:       uuid.NewString(),
		ClientID: clientID,
		Title:    title,
		URL:      url,
		Type:     assetType,
		Status:   in.Status,
		Tags:     tags,
	}, nil
}

// ============================================================
// Seen / frustration
// ============================================================

// MarkSeen records that the client opened the portal.
func (s *PortalService) MarkSeen(ctx context.Context, p *domain.Principal) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.MarkSeen")
	defer span.End()

	clientID, err := portalSessionClient(p)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, _ time.Time) error {
		st.Seen = true
		return nil
	})
}

// SetFrustration stores the manually tracked frustration KPI.
func (s *PortalService) SetFrustration(ctx context.Context, p *domain.Principal, clientID string, in *domain.FrustrationInput) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.SetFrustration")
	defer span.End()

	if err := requireStaff(p); err != nil {
		return nil, err
	}
	if in.Frustration < 0 {
		return nil, &domain.ErrValidation{Field: "frustration", Message: "must not be negative"}
	}
	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, _ time.Time) error {
		st.KPIs.Frustration = in.Frustration
		return nil
	})
}

// ============================================================
// Client portal
// ============================================================

// ClientDecideApproval lets the client approve or ask for changes on an
// approval. A note is appended to the approval's change notes.
func (s *PortalService) ClientDecideApproval(ctx context.Context, p *domain.Principal, approvalID string, in *domain.ApprovalDecision) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.ClientDecideApproval")
	defer span.End()

	clientID, err := portalSessionClient(p)
	if err != nil {
		return nil, err
	}
	if !domain.ClientDecisionStatus(in.Status) {
		return nil, &domain.ErrValidation{Field: "status", Message: clientDecisionMessage}
	}
	note := strings.TrimSpace(in.Note)

	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		a := findApproval(st, approvalID)
		if a == nil {
			return &domain.ErrNotFound{Resource: "approval", ID: approvalID}
		}
		a.Status = in.Status
		if note != "" {
			a.ChangeNotes = append(a.ChangeNotes, note)
		}
		logActivity(st, now, "Client marked %q as %s", a.Title, displayStatus(a.Status))
		return nil
	})
}

const clientDecisionMessage = "must be approved, changes, copy_approved or copy_changes"

// SaveFromClient accepts a whole document from the client portal but only
// takes the fields a client may change: approval status and change notes,
// new requests, and the seen flag. Everything else keeps its stored value.
// Status changes are limited to the same decisions ClientDecideApproval takes.
func (s *PortalService) SaveFromClient(ctx context.Context, p *domain.Principal, incoming *domain.PortalState) (*domain.PortalState, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.SaveFromClient")
	defer span.End()

	clientID, err := portalSessionClient(p)
	if err != nil {
		return nil, err
	}
	if incoming == nil {
		return nil, &domain.ErrValidation{Field: "body", Message: "portal state is required"}
	}
	for i, a := range incoming.Approvals {
		if !domain.ValidApprovalStatus(a.Status) {
			return nil, &domain.ErrValidation{Field: fmt.Sprintf("approvals[%d].status", i), Message: "unknown approval status"}
		}
	}

	return s.mutate(ctx, p, clientID, func(st *domain.PortalState, now time.Time) error {
		byID := make(map[string]domain.Approval, len(incoming.Approvals))
		for _, a := range incoming.Approvals {
			byID[a.ID] = a
		}
		for i := range st.Approvals {
			cur := &st.Approvals[i]
			in, ok := byID[cur.ID]
			if !ok {
				continue
			}
			if !domain.SameApprovalStatus(in.Status, cur.Status) {
				if !domain.ClientDecisionStatus(in.Status) {
					return &domain.ErrValidation{Field: "approvals." + cur.ID + ".status", Message: clientDecisionMessage}
				}
				cur.Status = in.Status
				logActivity(st, now, "Client marked %q as %s", cur.Title, displayStatus(cur.Status))
			}
			if len(in.ChangeNotes) > len(cur.ChangeNotes) {
				cur.ChangeNotes = cloneStrings(in.ChangeNotes)
			}
		}

		known := make(map[string]bool, len(st.Requests))
		for _, r := range st.Requests {
			known[r.ID] = true
		}
		for _, r := range incoming.Requests {
			if r.ID != "" && known[r.ID] {
				continue
			}
			r.Type = strings.TrimSpace(r.Type)
			r.Details = strings.TrimSpace(r.Details)
			if r.Type == "" || r.Details == "" {
				continue
			}
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			r.By = "client"
			r.Status = domain.StatusOpen
			r.DoneAt = ""
			r.CreatedAt = domain.FormatTimestamp(now)
			st.Requests = append(st.Requests, r)
			logActivity(st, now, "New request (%s) by client", r.Type)
		}

		st.Seen = incoming.Seen
		return nil
	})
}

func portalSessionClient(p *domain.Principal) (string, error) {
	if p == nil {
		return "", &domain.ErrUnauthorized{Message: "authentication required"}
	}
	id := p.PortalClientID()
	if id == "" {
		return "", &domain.ErrForbidden{Action: "client portal session required"}
	}
	return id, nil
}
