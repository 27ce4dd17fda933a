package jsonstore

import (
	"context"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/docstore"
)

// ============================================================
// ClientStore implementation — clients.json
// Client ids share one namespace across agencies.
// ============================================================

func (c *Client) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.GetClient")
	defer span.End()

	clients, err := docstore.Read(ctx, c.store, DocClients, emptyList[domain.Client]())
	if err != nil {
		return nil, err
	}
	for i := range clients {
		if clients[i].ID == clientID {
			return &clients[i], nil
		}
	}
	return nil, nil
}

func (c *Client) ListClients(ctx context.Context, agencyID string) ([]domain.Client, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.ListClients")
	defer span.End()

	clients, err := docstore.Read(ctx, c.store, DocClients, emptyList[domain.Client]())
	if err != nil {
		return nil, err
	}
	out := make([]domain.Client, 0, len(clients))
	for _, cl := range clients {
		if cl.AgencyID == agencyID {
			out = append(out, cl)
		}
	}
	return out, nil
}

func (c *Client) ClientIDExists(ctx context.Context, clientID string) (bool, error) {
	cl, err := c.GetClient(ctx, clientID)
	if err != nil {
		return false, err
	}
	return cl != nil, nil
}

func (c *Client) CreateClient(ctx context.Context, client *domain.Client) error {
	ctx, span := tracer.Start(ctx, "JSONStore.CreateClient")
	defer span.End()

	return docstore.Update(ctx, c.store, DocClients, emptyList[domain.Client](), func(clients *[]domain.Client) error {
		for _, cl := range *clients {
			if cl.ID == client.ID {
				return &domain.ErrConflict{Message: "client id already exists: " + client.ID}
			}
		}
		*clients = append(*clients, *client)
		return nil
	})
}

func (c *Client) UpdateClient(ctx context.Context, client *domain.Client) error {
	ctx, span := tracer.Start(ctx, "JSONStore.UpdateClient")
	defer span.End()

	return docstore.Update(ctx, c.store, DocClients, emptyList[domain.Client](), func(clients *[]domain.Client) error {
		for i := range *clients {
			if (*clients)[i].ID == client.ID {
				(*clients)[i] = *client
				return nil
			}
		}
		return &domain.ErrNotFound{Resource: "client", ID: client.ID}
	})
}

func (c *Client) DeleteClient(ctx context.Context, clientID string) error {
	ctx, span := tracer.Start(ctx, "JSONStore.DeleteClient")
	defer span.End()

	return docstore.Update(ctx, c.store, DocClients, emptyList[domain.Client](), func(clients *[]domain.Client) error {
		out := (*clients)[:0]
		found := false
		for _, cl := range *clients {
			if cl.ID == clientID {
				found = true
				continue
			}
			out = append(out, cl)
		}
		if !found {
			return docstore.ErrNoChange
		}
		*clients = out
		return nil
	})
}
