package service_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/service"
)

func TestAuth_LoginByEmailOrUsername(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.users.Update(ctx, env.owner, env.owner.UserID, &domain.UpdateUserRequest{Username: strPtr("Boss")})
	require.NoError(t, err)

	for _, identifier := range []string{testOwnerEmail, "OWNER@2fly.test", "boss"} {
		resp, err := env.auth.Login(ctx, &domain.LoginRequest{Identifier: identifier, Password: testOwnerPassword, AgencyID: testAgency})
		require.NoError(t, err, identifier)
		assert.Equal(t, env.owner.UserID, resp.User.ID)
		assert.Empty(t, resp.User.PasswordHash)
		assert.NotNil(t, resp.User.LastLoginAt)

		p, err := env.auth.ValidateStaffSession(ctx, resp.Token)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleOwner, p.Role)
		assert.Equal(t, testAgency, p.AgencyID)
	}

	_, err = env.auth.Login(ctx, &domain.LoginRequest{Identifier: testOwnerEmail, Password: testOwnerPassword, AgencyID: "other"})
	var unauthorized *domain.ErrUnauthorized
	require.ErrorAs(t, err, &unauthorized)
}

func TestAuth_LoginRateLimit(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	req := &domain.LoginRequest{Identifier: testOwnerEmail, Password: "wrong-password", AgencyID: testAgency, RemoteAddr: "203.0.113.7"}
	for i := 0; i < 5; i++ {
		_, err := env.auth.Login(ctx, req)
		var unauthorized *domain.ErrUnauthorized
		require.ErrorAs(t, err, &unauthorized, "attempt %d", i+1)
	}

	req.Password = testOwnerPassword
	_, err := env.auth.Login(ctx, req)
	var limited *domain.ErrRateLimited
	require.ErrorAs(t, err, &limited)

	// Another address is counted separately.
	req.RemoteAddr = "203.0.113.8"
	_, err = env.auth.Login(ctx, req)
	require.NoError(t, err)
}

func TestAuth_ClientSessionIsNotAStaffSession(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	resp, err := env.auth.ClientLogin(ctx, &domain.ClientLoginRequest{ClientID: testClientID, Password: testClientPass})
	require.NoError(t, err)

	_, err = env.auth.ValidateStaffSession(ctx, resp.Token)
	var unauthorized *domain.ErrUnauthorized
	require.ErrorAs(t, err, &unauthorized)

	staff, err := env.auth.Login(ctx, &domain.LoginRequest{Identifier: testOwnerEmail, Password: testOwnerPassword, AgencyID: testAgency})
	require.NoError(t, err)
	_, err = env.auth.ValidateClientSession(ctx, staff.Token)
	require.ErrorAs(t, err, &unauthorized)
}

func TestAuth_ExpiredSessionRejected(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	env.auth.SetClock(func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) })
	resp, err := env.auth.Login(ctx, &domain.LoginRequest{Identifier: testOwnerEmail, Password: testOwnerPassword, AgencyID: testAgency})
	require.NoError(t, err)
	env.auth.SetClock(time.Now)

	_, err = env.auth.ValidateStaffSession(ctx, resp.Token)
	var unauthorized *domain.ErrUnauthorized
	require.ErrorAs(t, err, &unauthorized)
}

func TestAuth_DisabledUserLosesSession(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	staff := inviteAndAccept(t, env, "staff@2fly.test", domain.RoleStaff)
	resp, err := env.auth.Login(ctx, &domain.LoginRequest{Identifier: "staff@2fly.test", Password: "invitee-password", AgencyID: testAgency})
	require.NoError(t, err)

	_, err = env.users.Delete(ctx, env.owner, staff.ID)
	require.NoError(t, err)

	var inactive *domain.ErrAccountInactive
	_, err = env.auth.ValidateStaffSession(ctx, resp.Token)
	require.ErrorAs(t, err, &inactive)

	_, err = env.auth.Login(ctx, &domain.LoginRequest{Identifier: "staff@2fly.test", Password: "invitee-password", AgencyID: testAgency})
	require.ErrorAs(t, err, &inactive)
}

func TestAuth_ResetTokenUsedOnce(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	resp, err := env.auth.ForgotPassword(ctx, &domain.ForgotPasswordRequest{Email: testOwnerEmail})
	require.NoError(t, err)
	unknown, err := env.auth.ForgotPassword(ctx, &domain.ForgotPasswordRequest{Email: "nobody@2fly.test"})
	require.NoError(t, err)
	assert.Equal(t, resp.Message, unknown.Message)

	token := env.notifier.lastReset(t)

	_, err = env.auth.ResetPassword(ctx, &domain.ResetPasswordRequest{Token: token, Password: "brand-new-password"})
	require.NoError(t, err)

	_, err = env.auth.ResetPassword(ctx, &domain.ResetPasswordRequest{Token: token, Password: "another-password"})
	var invalid *domain.ErrInvalidToken
	require.ErrorAs(t, err, &invalid)

	_, err = env.auth.Login(ctx, &domain.LoginRequest{Identifier: testOwnerEmail, Password: "brand-new-password", AgencyID: testAgency})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(env.dir, "password-reset-tokens.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), token)
}

func TestAuth_ExpiredResetToken(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	env.auth.SetClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	_, err := env.auth.ForgotPassword(ctx, &domain.ForgotPasswordRequest{Email: testOwnerEmail})
	require.NoError(t, err)
	env.auth.SetClock(time.Now)

	_, err = env.auth.ResetPassword(ctx, &domain.ResetPasswordRequest{Token: env.notifier.lastReset(t), Password: "brand-new-password"})
	var invalid *domain.ErrInvalidToken
	require.ErrorAs(t, err, &invalid)
}

func TestAuth_ForgotPasswordRateLimit(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	req := &domain.ForgotPasswordRequest{Email: testOwnerEmail, RemoteAddr: "198.51.100.1"}
	for i := 0; i < 3; i++ {
		_, err := env.auth.ForgotPassword(ctx, req)
		require.NoError(t, err)
	}
	_, err := env.auth.ForgotPassword(ctx, req)
	var limited *domain.ErrRateLimited
	require.ErrorAs(t, err, &limited)
}

func TestAuth_LegacyHeaders(t *testing.T) {
	ctx := context.Background()

	off := newEnv(t)
	_, err := off.auth.ResolveLegacyHeaders(ctx, testAgency, off.owner.UserID)
	var unauthorized *domain.ErrUnauthorized
	require.ErrorAs(t, err, &unauthorized)

	env := newEnvWith(t, envOptions{maxDocBytes: 1 << 20, legacy: true})

	p, err := env.auth.ResolveLegacyHeaders(ctx, testAgency, env.owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, p.Role)
	assert.True(t, p.Legacy)

	p, err = env.auth.ResolveLegacyHeaders(ctx, testAgency, "ghost")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStaff, p.Role)

	_, err = env.auth.ResolveLegacyHeaders(ctx, "another-agency", env.owner.UserID)
	require.ErrorAs(t, err, &unauthorized)

	me, err := env.auth.Me(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "ghost", me.ID)

	logs, err := env.audit.List(ctx, env.owner, 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, service.AuditLegacyAuth, logs[0].Action)
}

func TestAdmin_MigrateUpgradesPlaintextCredentials(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	path := filepath.Join(env.dir, "client-credentials.json")
	legacy := `[{"agencyId":"twofly","clientId":"casa-nova","password":"casa123"}]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	res, err := env.admin.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Credentials)
	assert.Equal(t, 1, res.Documents)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "casa123")

	login, err := env.auth.ClientLogin(ctx, &domain.ClientLoginRequest{ClientID: testClientID, Password: "casa123"})
	require.NoError(t, err)
	assert.Equal(t, testClientID, login.ClientID)
}

func TestAdmin_MigrateUpgradesOverlongPlaintextCredentials(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	long := strings.Repeat("p", 80)
	path := filepath.Join(env.dir, "client-credentials.json")
	legacy := `[{"agencyId":"twofly","clientId":"casa-nova","password":"` + long + `"},` +
		`{"agencyId":"twofly","clientId":"old-client","password":"short123"}]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	res, err := env.admin.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Credentials)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), long)
	assert.NotContains(t, string(raw), "short123")

	login, err := env.auth.ClientLogin(ctx, &domain.ClientLoginRequest{ClientID: testClientID, Password: long})
	require.NoError(t, err)
	assert.Equal(t, testClientID, login.ClientID)

	_, err = env.auth.ClientLogin(ctx, &domain.ClientLoginRequest{ClientID: testClientID, Password: long[:72]})
	assert.Error(t, err)
}
