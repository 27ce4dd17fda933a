package jsonstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/twofly/client-portal-go/internal/infra/docstore"
)

// ============================================================
// PortalStore implementation — portal-state.json
// One object keyed by client id; each value is a raw portal document.
// ============================================================

func (c *Client) GetPortalDocument(ctx context.Context, clientID string) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.GetPortalDocument")
	defer span.End()

	docs, err := docstore.Read(ctx, c.store, DocPortalState, emptyRawMap)
	if err != nil {
		return nil, err
	}
	raw, ok := docs[clientID]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode portal document %s: %w", clientID, err)
	}
	return doc, nil
}

func (c *Client) ListPortalClientIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.ListPortalClientIDs")
	defer span.End()

	docs, err := docstore.Read(ctx, c.store, DocPortalState, emptyRawMap)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Client) SavePortalDocument(ctx context.Context, clientID string, doc any) error {
	ctx, span := tracer.Start(ctx, "JSONStore.SavePortalDocument")
	defer span.End()

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode portal document %s: %w", clientID, err)
	}
	return docstore.Update(ctx, c.store, DocPortalState, emptyRawMap, func(docs *map[string]json.RawMessage) error {
		if *docs == nil {
			*docs = emptyRawMap()
		}
		(*docs)[clientID] = raw
		return nil
	})
}

func (c *Client) DeletePortalDocument(ctx context.Context, clientID string) error {
	ctx, span := tracer.Start(ctx, "JSONStore.DeletePortalDocument")
	defer span.End()

	return docstore.Update(ctx, c.store, DocPortalState, emptyRawMap, func(docs *map[string]json.RawMessage) error {
		if _, ok := (*docs)[clientID]; !ok {
			return docstore.ErrNoChange
		}
		delete(*docs, clientID)
		return nil
	})
}
