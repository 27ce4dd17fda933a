package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSetupThenAdminCommands(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "file")
	t.Setenv("APP_BASE_URL", "https://portal.test")
	dir := t.TempDir()

	out, err := run(t, "setup", "--data-dir", dir,
		"--agency", "twofly", "--agency-name", "2FLY",
		"--email", "owner@2fly.test", "--name", "Owner",
		"--demo-client", "Casa Nova", "--demo-client-password", "casa-nova-pass")
	require.NoError(t, err)
	assert.Contains(t, out, "agency:   twofly (2FLY)")
	assert.Contains(t, out, "password: ")
	assert.Contains(t, out, "client:   casa-nova (Casa Nova)")

	for _, doc := range []string{"agencies.json", "users.json", "clients.json", "portal-state.json", "client-credentials.json"} {
		_, err := os.Stat(filepath.Join(dir, doc))
		assert.NoError(t, err, doc)
	}

	out, err = run(t, "reset-admin", "--data-dir", dir, "--agency", "twofly", "--user", "owner@2fly.test")
	require.NoError(t, err)
	assert.Contains(t, out, "password: ")

	out, err = run(t, "generate-invite", "--data-dir", dir, "--agency", "twofly", "--email", "staff@2fly.test", "--role", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "invite:  https://portal.test/")
	assert.Contains(t, out, "ADMIN")

	out, err = run(t, "set-client-password", "--data-dir", dir, "--client", "casa-nova", "--password", "another-pass")
	require.NoError(t, err)
	assert.Contains(t, out, "password updated for client casa-nova")

	raw, err := os.ReadFile(filepath.Join(dir, "client-credentials.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "another-pass")

	out, err = run(t, "migrate", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "documents migrated:")
}

func TestCommandErrors(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "file")
	dir := t.TempDir()

	_, err := run(t, "create-admin", "--data-dir", dir, "--agency", "twofly", "--email", "not-an-email")
	require.Error(t, err)

	_, err = run(t, "set-client-password", "--data-dir", dir, "--client", "missing", "--password", "long-enough-pass")
	require.Error(t, err)

	_, err = run(t, "generate-invite", "--data-dir", dir, "--agency", "nope", "--email", "a@b.test")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not found"), err.Error())

	_, err = run(t, "reset-admin", "--data-dir", dir)
	require.Error(t, err, "required flags are enforced")
}
