package jsonstore

import (
	"context"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/docstore"
)

// ============================================================
// AgencyStore implementation — agencies.json
// ============================================================

func (c *Client) GetAgency(ctx context.Context, agencyID string) (*domain.Agency, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.GetAgency")
	defer span.End()

	agencies, err := docstore.Read(ctx, c.store, DocAgencies, emptyList[domain.Agency]())
	if err != nil {
		return nil, err
	}
	for i := range agencies {
		if agencies[i].ID == agencyID {
			return &agencies[i], nil
		}
	}
	return nil, nil
}

func (c *Client) ListAgencies(ctx context.Context) ([]domain.Agency, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.ListAgencies")
	defer span.End()

	return docstore.Read(ctx, c.store, DocAgencies, emptyList[domain.Agency]())
}

func (c *Client) CreateAgency(ctx context.Context, agency *domain.Agency) error {
	ctx, span := tracer.Start(ctx, "JSONStore.CreateAgency")
	defer span.End()

	return docstore.Update(ctx, c.store, DocAgencies, emptyList[domain.Agency](), func(agencies *[]domain.Agency) error {
		for _, a := range *agencies {
			if a.ID == agency.ID {
				return &domain.ErrConflict{Message: "agency already exists: " + agency.ID}
			}
		}
		*agencies = append(*agencies, *agency)
		return nil
	})
}
