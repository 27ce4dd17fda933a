package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/migration"
)

// maxActivity bounds the activity log; older entries are dropped first.
const maxActivity = 500

// DefaultPortalState is the document a new client starts with: zero KPIs,
// empty collections, current schema version.
func DefaultPortalState(client *domain.Client, now time.Time) *domain.PortalState {
	return &domain.PortalState{
		SchemaVersion: migration.CurrentVersion,
		AgencyID:      client.AgencyID,
		Client: domain.PortalClient{
			ID:       client.ID,
			Name:     client.Name,
			WhatsApp: client.WhatsApp,
		},
		Approvals: []domain.Approval{},
		Needs:     []domain.Need{},
		Requests:  []domain.Request{},
		Assets:    []domain.Asset{},
		Activity:  []domain.Activity{},
		UpdatedAt: domain.FormatTimestamp(now),
	}
}

func decodePortal(doc map[string]any) (*domain.PortalState, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var st domain.PortalState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// normalizePortal forces the identity fields from the client record and
// replaces nil collections. It reports whether the document changed.
func normalizePortal(st *domain.PortalState, client *domain.Client) bool {
	changed := false
	if st.SchemaVersion != migration.CurrentVersion {
		st.SchemaVersion = migration.CurrentVersion
		changed = true
	}
	if st.AgencyID != client.AgencyID {
		st.AgencyID = client.AgencyID
		changed = true
	}
	if st.Client.ID != client.ID {
		st.Client.ID = client.ID
		changed = true
	}
	if st.Client.Name == "" && client.Name != "" {
		st.Client.Name = client.Name
		changed = true
	}
	if st.Approvals == nil {
		st.Approvals = []domain.Approval{}
		changed = true
	}
	if st.Needs == nil {
		st.Needs = []domain.Need{}
		changed = true
	}
	if st.Requests == nil {
		st.Requests = []domain.Request{}
		changed = true
	}
	if st.Assets == nil {
		st.Assets = []domain.Asset{}
		changed = true
	}
	if st.Activity == nil {
		st.Activity = []domain.Activity{}
		changed = true
	}
	for i := range st.Approvals {
		a := &st.Approvals[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
			changed = true
		}
		if a.ChangeNotes == nil {
			a.ChangeNotes = []string{}
			changed = true
		}
		if a.Tags == nil {
			a.Tags = []string{}
			changed = true
		}
	}
	for i := range st.Needs {
		if st.Needs[i].ID == "" {
			st.Needs[i].ID = uuid.NewString()
			changed = true
		}
		if st.Needs[i].Status == "" {
			st.Needs[i].Status = domain.StatusOpen
			changed = true
		}
	}
	for i := range st.Requests {
		if st.Requests[i].ID == "" {
			st.Requests[i].ID = uuid.NewString()
			changed = true
		}
		if st.Requests[i].Status == "" {
			st.Requests[i].Status = domain.StatusOpen
			changed = true
		}
	}
	for i := range st.Assets {
		a := &st.Assets[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
			changed = true
		}
		if a.ClientID != client.ID {
			a.ClientID = client.ID
			changed = true
		}
		if a.Tags == nil {
			a.Tags = []string{}
			changed = true
		}
	}
	return changed
}

func validatePortal(st *domain.PortalState) error {
	if st.KPIs.Frustration < 0 {
		return &domain.ErrValidation{Field: "kpis.frustration", Message: "must not be negative"}
	}
	for i, a := range st.Approvals {
		if !domain.ValidApprovalStatus(a.Status) {
			return &domain.ErrValidation{Field: fmt.Sprintf("approvals[%d].status", i), Message: fmt.Sprintf("unknown status %q", a.Status)}
		}
	}
	for i, n := range st.Needs {
		if err := validateOpenDone(n.Status); err != nil {
			return &domain.ErrValidation{Field: fmt.Sprintf("needs[%d].status", i), Message: err.Error()}
		}
		if n.Severity != "" && n.Severity != domain.SeverityWarn && n.Severity != domain.SeverityBad {
			return &domain.ErrValidation{Field: fmt.Sprintf("needs[%d].severity", i), Message: fmt.Sprintf("unknown severity %q", n.Severity)}
		}
	}
	for i, r := range st.Requests {
		if err := validateOpenDone(r.Status); err != nil {
			return &domain.ErrValidation{Field: fmt.Sprintf("requests[%d].status", i), Message: err.Error()}
		}
	}
	for i, a := range st.Assets {
		if a.Type != "" && !domain.ValidAssetType(a.Type) {
			return &domain.ErrValidation{Field: fmt.Sprintf("assets[%d].type", i), Message: fmt.Sprintf("unknown type %q", a.Type)}
		}
	}
	return nil
}

func validateOpenDone(status string) error {
	if status != domain.StatusOpen && status != domain.StatusDone {
		return fmt.Errorf("unknown status %q", status)
	}
	return nil
}

// clonePortal deep-copies a document so cached values are never shared with callers.
func clonePortal(st *domain.PortalState) *domain.PortalState {
	if st == nil {
		return nil
	}
	out := *st
	out.Approvals = make([]domain.Approval, len(st.Approvals))
	for i, a := range st.Approvals {
		a.UploadedImages = cloneStrings(a.UploadedImages)
		a.ChangeNotes = cloneStrings(a.ChangeNotes)
		a.Tags = cloneStrings(a.Tags)
		out.Approvals[i] = a
	}
	out.Needs = append(make([]domain.Need, 0, len(st.Needs)), st.Needs...)
	out.Requests = append(make([]domain.Request, 0, len(st.Requests)), st.Requests...)
	out.Assets = make([]domain.Asset, len(st.Assets))
	for i, a := range st.Assets {
		a.Tags = cloneStrings(a.Tags)
		out.Assets[i] = a
	}
	out.Activity = append(make([]domain.Activity, 0, len(st.Activity)), st.Activity...)
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}

// logActivity appends to the activity log, trimming the oldest entries.
func logActivity(st *domain.PortalState, now time.Time, format string, args ...any) {
	st.Activity = append(st.Activity, domain.Activity{
		When: domain.FormatTimestamp(now),
		Text: fmt.Sprintf(format, args...),
	})
	if n := len(st.Activity); n > maxActivity {
		st.Activity = append([]domain.Activity(nil), st.Activity[n-maxActivity:]...)
	}
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
