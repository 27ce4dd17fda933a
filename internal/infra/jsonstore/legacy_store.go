package jsonstore

import (
	"context"
	"strings"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/docstore"
)

// ============================================================
// Legacy documents — pre-agency staff/workspaces and the old
// content library (assets.json). Read-mostly.
// ============================================================

type legacyWorkspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type legacyStaff struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Status      string `json:"status,omitempty"`
}

// GetLegacyStaff resolves a staff record of a legacy workspace as a User.
// Returns (nil, nil) when the workspace or the staff member is unknown.
func (c *Client) GetLegacyStaff(ctx context.Context, workspaceID, staffID string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.GetLegacyStaff")
	defer span.End()

	workspaces, err := docstore.Read(ctx, c.store, DocWorkspaces, emptyList[legacyWorkspace]())
	if err != nil {
		return nil, err
	}
	known := false
	for _, w := range workspaces {
		if w.ID == workspaceID {
			known = true
			break
		}
	}
	if !known {
		return nil, nil
	}

	staff, err := docstore.Read(ctx, c.store, DocStaff, emptyList[legacyStaff]())
	if err != nil {
		return nil, err
	}
	for _, s := range staff {
		if s.ID != staffID || s.WorkspaceID != workspaceID {
			continue
		}
		role := domain.Role(strings.ToUpper(s.Role))
		if !role.Valid() {
			role = domain.RoleStaff
		}
		status := domain.UserActive
		if strings.EqualFold(s.Status, "disabled") {
			status = domain.UserDisabled
		}
		return &domain.User{
			ID:       s.ID,
			AgencyID: s.WorkspaceID,
			Email:    s.Email,
			Name:     s.Name,
			Role:     role,
			Status:   status,
		}, nil
	}
	return nil, nil
}

func (c *Client) ListLegacyAssets(ctx context.Context, clientID string) ([]domain.Asset, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.ListLegacyAssets")
	defer span.End()

	assets, err := docstore.Read(ctx, c.store, DocAssets, emptyList[domain.Asset]())
	if err != nil {
		return nil, err
	}
	var out []domain.Asset
	for _, a := range assets {
		if a.ClientID == clientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (c *Client) DeleteLegacyAssets(ctx context.Context, clientID string) error {
	ctx, span := tracer.Start(ctx, "JSONStore.DeleteLegacyAssets")
	defer span.End()

	return docstore.Update(ctx, c.store, DocAssets, emptyList[domain.Asset](), func(assets *[]domain.Asset) error {
		out := (*assets)[:0]
		for _, a := range *assets {
			if a.ClientID != clientID {
				out = append(out, a)
			}
		}
		if len(out) == len(*assets) {
			return docstore.ErrNoChange
		}
		*assets = out
		return nil
	})
}
