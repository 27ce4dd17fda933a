package jsonstore

import (
	"context"
	"sort"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/docstore"
)

// maxAuditEntries bounds audit-logs.json; the oldest entries are dropped first.
const maxAuditEntries = 5000

func (c *Client) AppendAudit(ctx context.Context, entry *domain.AuditLog) error {
	ctx, span := tracer.Start(ctx, "JSONStore.AppendAudit")
	defer span.End()

	return docstore.Update(ctx, c.store, DocAuditLogs, emptyList[domain.AuditLog](), func(logs *[]domain.AuditLog) error {
		*logs = append(*logs, *entry)
		if over := len(*logs) - maxAuditEntries; over > 0 {
			*logs = (*logs)[over:]
		}
		return nil
	})
}

// ListAudit returns the agency's entries, newest first.
func (c *Client) ListAudit(ctx context.Context, agencyID string, limit int) ([]domain.AuditLog, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.ListAudit")
	defer span.End()

	logs, err := docstore.Read(ctx, c.store, DocAuditLogs, emptyList[domain.AuditLog]())
	if err != nil {
		return nil, err
	}
	out := make([]domain.AuditLog, 0)
	for _, l := range logs {
		if l.AgencyID == agencyID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
