package jsonstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/docstore"
)

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := docstore.NewFileBackend(dir)
	require.NoError(t, err)
	return NewClient(docstore.New(b, zap.NewNop()), zap.NewNop()), dir
}

func TestUsers_IdentifierLookupIsAgencyScoped(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.CreateUser(ctx, &domain.User{ID: "u1", AgencyID: "a1", Email: "Ana@2fly.com", Username: "ana"}))
	require.NoError(t, c.CreateUser(ctx, &domain.User{ID: "u2", AgencyID: "a2", Email: "ana@2fly.com", Username: "ana"}))

	u, err := c.FindUserByIdentifier(ctx, "a1", "ANA@2fly.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID)

	u, err = c.FindUserByIdentifier(ctx, "a2", "ana")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u2", u.ID)

	u, err = c.FindUserByIdentifier(ctx, "a3", "ana")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUsers_DuplicateEmailInAgencyConflicts(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.CreateUser(ctx, &domain.User{ID: "u1", AgencyID: "a1", Email: "x@2fly.com"}))
	err := c.CreateUser(ctx, &domain.User{ID: "u2", AgencyID: "a1", Email: "X@2fly.com"})

	var conflict *domain.ErrConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestUsers_UpdateCheckedRollsBackOnCheckFailure(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.CreateUser(ctx, &domain.User{ID: "u1", AgencyID: "a1", Email: "o@2fly.com", Role: domain.RoleOwner, Status: domain.UserActive}))

	_, err := c.UpdateUserChecked(ctx, "u1",
		func(u *domain.User) error { u.Status = domain.UserDisabled; return nil },
		func(users []domain.User) error { return &domain.ErrLastOwner{AgencyID: "a1"} },
	)
	var lastOwner *domain.ErrLastOwner
	require.ErrorAs(t, err, &lastOwner)

	u, err := c.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserActive, u.Status)
}

func TestTokens_ConsumeExactlyOnce(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	tok := &domain.ActionToken{ID: "t1", Kind: domain.TokenReset, UserID: "u1", TokenHash: "abc", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, c.StoreToken(ctx, tok))

	got, err := c.GetTokenByHash(ctx, domain.TokenReset, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)

	missing, err := c.GetTokenByHash(ctx, domain.TokenInvite, "abc")
	require.NoError(t, err)
	assert.Nil(t, missing, "reset tokens must not be visible as invites")

	require.NoError(t, c.ConsumeToken(ctx, domain.TokenReset, "t1", time.Now()))
	var invalid *domain.ErrInvalidToken
	assert.ErrorAs(t, c.ConsumeToken(ctx, domain.TokenReset, "t1", time.Now()), &invalid)
}

func TestCredentials_LegacyPlaintextIsUpgraded(t *testing.T) {
	c, dir := newTestClient(t)
	ctx := context.Background()
	legacy := `[{"agencyId":"a1","clientId":"casa-nova","password":"hunter2"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DocCredentials), []byte(legacy), 0o644))

	cred, err := c.GetClientCredential(ctx, "casa-nova")
	require.NoError(t, err)
	assert.Nil(t, cred, "plaintext rows are not served")

	n, err := c.UpgradeLegacyCredentials(ctx, func(p string) (string, error) { return "hashed:" + p, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cred, err = c.GetClientCredential(ctx, "casa-nova")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "hashed:hunter2", cred.PasswordHash)

	raw, err := os.ReadFile(filepath.Join(dir, DocCredentials))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"password": "hunter2"`)
}

func TestPortal_DocumentRoundTripAndDelete(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SavePortalDocument(ctx, "casa-nova", map[string]any{"seen": true}))
	doc, err := c.GetPortalDocument(ctx, "casa-nova")
	require.NoError(t, err)
	assert.Equal(t, true, doc["seen"])

	ids, err := c.ListPortalClientIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"casa-nova"}, ids)

	require.NoError(t, c.DeletePortalDocument(ctx, "casa-nova"))
	doc, err = c.GetPortalDocument(ctx, "casa-nova")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestLegacyStaff_ResolvesKnownWorkspaceOnly(t *testing.T) {
	c, dir := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DocWorkspaces), []byte(`[{"id":"ws1","name":"2FLY"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DocStaff), []byte(`[{"id":"s1","workspaceId":"ws1","name":"Bia","email":"bia@2fly.com","role":"admin"}]`), 0o644))

	u, err := c.GetLegacyStaff(ctx, "ws1", "s1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	assert.Equal(t, domain.UserActive, u.Status)

	u, err = c.GetLegacyStaff(ctx, "ws2", "s1")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestAudit_ListIsNewestFirstAndScoped(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.AppendAudit(ctx, &domain.AuditLog{ID: "1", AgencyID: "a1", Action: "x", CreatedAt: base}))
	require.NoError(t, c.AppendAudit(ctx, &domain.AuditLog{ID: "2", AgencyID: "a1", Action: "y", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, c.AppendAudit(ctx, &domain.AuditLog{ID: "3", AgencyID: "a2", Action: "z", CreatedAt: base}))

	logs, err := c.ListAudit(ctx, "a1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "2", logs[0].ID)
}
