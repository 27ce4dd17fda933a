package service_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/service"
)

func TestClients_SlugDerivationAndConflict(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	acme, err := env.clients.Create(ctx, env.owner, &domain.CreateClientRequest{ID: "acme", Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "acme", acme.ID)
	assert.Equal(t, "active", acme.Status)

	_, err = env.clients.Create(ctx, env.owner, &domain.CreateClientRequest{ID: "acme", Name: "Acme Again"})
	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)

	derived, err := env.clients.Create(ctx, env.owner, &domain.CreateClientRequest{Name: "ACME"})
	require.NoError(t, err)
	assert.Equal(t, "acme-2", derived.ID)

	third, err := env.clients.Create(ctx, env.owner, &domain.CreateClientRequest{Name: "Acme!"})
	require.NoError(t, err)
	assert.Equal(t, "acme-3", third.ID)

	_, err = env.clients.Create(ctx, env.owner, &domain.CreateClientRequest{ID: "Not A Slug", Name: "x"})
	var invalid *domain.ErrValidation
	require.ErrorAs(t, err, &invalid)

	_, err = env.clients.Create(ctx, env.owner, &domain.CreateClientRequest{Name: "  "})
	require.ErrorAs(t, err, &invalid)
}

func TestClients_DerivedIDsFitSlugLimit(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	name := strings.Repeat("Long Name ", 10)
	first, err := env.clients.Create(ctx, env.owner, &domain.CreateClientRequest{Name: name})
	require.NoError(t, err)
	assert.True(t, service.ValidSlug(first.ID), first.ID)

	second, err := env.clients.Create(ctx, env.owner, &domain.CreateClientRequest{Name: name})
	require.NoError(t, err)
	assert.True(t, service.ValidSlug(second.ID), second.ID)
	assert.True(t, strings.HasSuffix(second.ID, "-2"), second.ID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestClients_UpdateMergesOnlyProvidedFields(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.clients.Update(ctx, env.owner, testClientID, &domain.UpdateClientRequest{
		Email:    strPtr("Contato@CasaNova.test"),
		WhatsApp: strPtr("+55 11 99999-0000"),
		Preferences: &domain.ClientPreferences{
			Platforms: []string{"instagram"},
		},
	})
	require.NoError(t, err)

	updated, err := env.clients.Update(ctx, env.owner, testClientID, &domain.UpdateClientRequest{
		Name: strPtr("Casa Nova Restaurante"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Casa Nova Restaurante", updated.Name)
	assert.Equal(t, "contato@casanova.test", updated.Email)
	assert.Equal(t, "+55 11 99999-0000", updated.WhatsApp)
	assert.Equal(t, []string{"instagram"}, updated.Preferences.Platforms)

	st, err := env.portal.Load(ctx, env.owner, testClientID)
	require.NoError(t, err)
	assert.Equal(t, "Casa Nova Restaurante", st.Client.Name)
	assert.Equal(t, "+55 11 99999-0000", st.Client.WhatsApp)
}

func TestClients_DeleteCascades(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	staff := &domain.Principal{Kind: domain.PrincipalStaff, UserID: "s1", AgencyID: testAgency, Role: domain.RoleStaff}
	err := env.clients.Delete(ctx, staff, testClientID)
	var forbidden *domain.ErrForbidden
	require.ErrorAs(t, err, &forbidden)

	require.NoError(t, env.clients.Delete(ctx, env.owner, testClientID))

	c, err := env.store.GetClient(ctx, testClientID)
	require.NoError(t, err)
	assert.Nil(t, c)
	doc, err := env.store.GetPortalDocument(ctx, testClientID)
	require.NoError(t, err)
	assert.Nil(t, doc)
	cred, err := env.store.GetClientCredential(ctx, testClientID)
	require.NoError(t, err)
	assert.Nil(t, cred)

	_, err = env.auth.ClientLogin(ctx, &domain.ClientLoginRequest{ClientID: testClientID, Password: testClientPass})
	var unauthorized *domain.ErrUnauthorized
	require.ErrorAs(t, err, &unauthorized)

	_, err = env.portal.Load(ctx, env.owner, testClientID)
	assert.True(t, domain.IsNotFound(err))
}

func TestClients_SetPasswordReplacesCredential(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	err := env.clients.SetPassword(ctx, env.owner, testClientID, &domain.SetClientPasswordRequest{Password: "short"})
	var invalid *domain.ErrValidation
	require.ErrorAs(t, err, &invalid)

	require.NoError(t, env.clients.SetPassword(ctx, env.owner, testClientID, &domain.SetClientPasswordRequest{Password: "a-new-password"}))

	_, err = env.auth.ClientLogin(ctx, &domain.ClientLoginRequest{ClientID: testClientID, Password: testClientPass})
	require.Error(t, err)
	resp, err := env.auth.ClientLogin(ctx, &domain.ClientLoginRequest{ClientID: "Casa-Nova", Password: "a-new-password"})
	require.NoError(t, err)
	assert.Equal(t, testClientID, resp.ClientID)
	assert.Equal(t, 24*60*60, resp.ExpiresIn)

	raw, err := os.ReadFile(filepath.Join(env.dir, "client-credentials.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "a-new-password")
}
