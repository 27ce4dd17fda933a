package jsonstore

import (
	"context"
	"time"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/docstore"
	"go.uber.org/zap"
)

// ============================================================
// CredentialStore implementation — client-credentials.json
// ============================================================

// credentialRecord is the stored row. Password is only ever present on rows
// written before hashing was introduced; it is cleared on upgrade.
type credentialRecord struct {
	AgencyID     string    `json:"agencyId"`
	ClientID     string    `json:"clientId"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	Password     string    `json:"password,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// GetClientCredential returns only hashed credentials. A row still holding a
// plaintext password is treated as absent until it has been upgraded.
func (c *Client) GetClientCredential(ctx context.Context, clientID string) (*domain.ClientCredential, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.GetClientCredential")
	defer span.End()

	rows, err := docstore.Read(ctx, c.store, DocCredentials, emptyList[credentialRecord]())
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.ClientID == clientID && r.PasswordHash != "" {
			return &domain.ClientCredential{
				AgencyID:     r.AgencyID,
				ClientID:     r.ClientID,
				PasswordHash: r.PasswordHash,
				UpdatedAt:    r.UpdatedAt,
			}, nil
		}
	}
	return nil, nil
}

func (c *Client) SetClientCredential(ctx context.Context, cred *domain.ClientCredential) error {
	ctx, span := tracer.Start(ctx, "JSONStore.SetClientCredential")
	defer span.End()

	row := credentialRecord{
		AgencyID:     cred.AgencyID,
		ClientID:     cred.ClientID,
		PasswordHash: cred.PasswordHash,
		UpdatedAt:    cred.UpdatedAt,
	}
	return docstore.Update(ctx, c.store, DocCredentials, emptyList[credentialRecord](), func(rows *[]credentialRecord) error {
		for i := range *rows {
			if (*rows)[i].ClientID == cred.ClientID {
				(*rows)[i] = row
				return nil
			}
		}
		*rows = append(*rows, row)
		return nil
	})
}

func (c *Client) DeleteClientCredential(ctx context.Context, clientID string) error {
	ctx, span := tracer.Start(ctx, "JSONStore.DeleteClientCredential")
	defer span.End()

	return docstore.Update(ctx, c.store, DocCredentials, emptyList[credentialRecord](), func(rows *[]credentialRecord) error {
		out := (*rows)[:0]
		for _, r := range *rows {
			if r.ClientID != clientID {
				out = append(out, r)
			}
		}
		if len(out) == len(*rows) {
			return docstore.ErrNoChange
		}
		*rows = out
		return nil
	})
}

func (c *Client) UpgradeLegacyCredentials(ctx context.Context, hash func(plain string) (string, error)) (int, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.UpgradeLegacyCredentials")
	defer span.End()

	upgraded := 0
	err := docstore.Update(ctx, c.store, DocCredentials, emptyList[credentialRecord](), func(rows *[]credentialRecord) error {
		for i := range *rows {
			r := &(*rows)[i]
			if r.Password == "" {
				continue
			}
			h, err := hash(r.Password)
			if err != nil {
				return err
			}
			r.PasswordHash = h
			r.Password = ""
			r.UpdatedAt = time.Now().UTC()
			upgraded++
		}
		if upgraded == 0 {
			return docstore.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if upgraded > 0 {
		c.logger.Info("jsonstore: hashed legacy client credentials", zap.Int("count", upgraded))
	}
	return upgraded, nil
}
