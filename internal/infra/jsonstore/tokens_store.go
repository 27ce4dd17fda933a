package jsonstore

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/docstore"
)

// ============================================================
// TokenStore implementation — invite-tokens.json, password-reset-tokens.json
// ============================================================

func tokenDoc(kind domain.TokenKind) (string, error) {
	switch kind {
	case domain.TokenInvite:
		return DocInviteTokens, nil
	case domain.TokenReset:
		return DocResetTokens, nil
	}
	return "", fmt.Errorf("unknown token kind %q", kind)
}

func (c *Client) StoreToken(ctx context.Context, token *domain.ActionToken) error {
	ctx, span := tracer.Start(ctx, "JSONStore.StoreToken")
	defer span.End()

	name, err := tokenDoc(token.Kind)
	if err != nil {
		return err
	}
	return docstore.Update(ctx, c.store, name, emptyList[domain.ActionToken](), func(tokens *[]domain.ActionToken) error {
		*tokens = append(*tokens, *token)
		return nil
	})
}

func (c *Client) GetTokenByHash(ctx context.Context, kind domain.TokenKind, tokenHash string) (*domain.ActionToken, error) {
	ctx, span := tracer.Start(ctx, "JSONStore.GetTokenByHash")
	defer span.End()

	name, err := tokenDoc(kind)
	if err != nil {
		return nil, err
	}
	tokens, err := docstore.Read(ctx, c.store, name, emptyList[domain.ActionToken]())
	if err != nil {
		return nil, err
	}
	for i := range tokens {
		if subtle.ConstantTimeCompare([]byte(tokens[i].TokenHash), []byte(tokenHash)) == 1 {
			return &tokens[i], nil
		}
	}
	return nil, nil
}

func (c *Client) ConsumeToken(ctx context.Context, kind domain.TokenKind, tokenID string, usedAt time.Time) error {
	ctx, span := tracer.Start(ctx, "JSONStore.ConsumeToken")
	defer span.End()

	name, err := tokenDoc(kind)
	if err != nil {
		return err
	}
	return docstore.Update(ctx, c.store, name, emptyList[domain.ActionToken](), func(tokens *[]domain.ActionToken) error {
		for i := range *tokens {
			t := &(*tokens)[i]
			if t.ID != tokenID {
				continue
			}
			if t.UsedAt != nil {
				return &domain.ErrInvalidToken{}
			}
			at := usedAt.UTC()
			t.UsedAt = &at
			return nil
		}
		return &domain.ErrInvalidToken{}
	})
}

// RevokeUserTokens marks every outstanding token of a user as used, so a
// resent invite invalidates the previous link.
func (c *Client) RevokeUserTokens(ctx context.Context, kind domain.TokenKind, userID string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "JSONStore.RevokeUserTokens")
	defer span.End()

	name, err := tokenDoc(kind)
	if err != nil {
		return err
	}
	return docstore.Update(ctx, c.store, name, emptyList[domain.ActionToken](), func(tokens *[]domain.ActionToken) error {
		changed := false
		for i := range *tokens {
			t := &(*tokens)[i]
			if t.UserID == userID && t.UsedAt == nil {
				revoked := at.UTC()
				t.UsedAt = &revoked
				changed = true
			}
		}
		if !changed {
			return docstore.ErrNoChange
		}
		return nil
	})
}
