package jsonstore

import (
	"context"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/docstore"
)

func (c *Client) GetIntegration(ctx context.Context, agencyID, provider string) (*domain.Integration, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.GetIntegration")
	defer span.End()

	items, err := docstore.Read(ctx, c.store, DocIntegrations, emptyList[domain.Integration]())
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].AgencyID == agencyID && items[i].Provider == provider {
			return &items[i], nil
		}
	}
	return nil, nil
}

func (c *Client) SaveIntegration(ctx context.Context, integration *domain.Integration) error {
	ctx, span := tracer.Start(ctx, "JSONStore.SaveIntegration")
	defer span.End()

	return docstore.Update(ctx, c.store, DocIntegrations, emptyList[domain.Integration](), func(items *[]domain.Integration) error {
		for i := range *items {
			if (*items)[i].AgencyID == integration.AgencyID && (*items)[i].Provider == integration.Provider {
				(*items)[i] = *integration
				return nil
			}
		}
		*items = append(*items, *integration)
		return nil
	})
}

func (c *Client) DeleteIntegration(ctx context.Context, agencyID, provider string) error {
	ctx, span := tracer.Start(ctx, "JSONStore.DeleteIntegration")
	defer span.End()

	return docstore.Update(ctx, c.store, DocIntegrations, emptyList[domain.Integration](), func(items *[]domain.Integration) error {
		out := (*items)[:0]
		for _, it := range *items {
			if it.AgencyID == agencyID && it.Provider == provider {
				continue
			}
			out = append(out, it)
		}
		if len(out) == len(*items) {
			return docstore.ErrNoChange
		}
		*items = out
		return nil
	})
}
