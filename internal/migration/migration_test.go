package migration

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twofly/client-portal-go/internal/domain"
)

var now = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &doc))
	return doc
}

func TestVersion(t *testing.T) {
	assert.Equal(t, 0, Version(map[string]any{}))
	assert.Equal(t, 0, Version(map[string]any{"schemaVersion": "2"}))
	assert.Equal(t, 1, Version(decode(t, `{"schemaVersion": 1}`)))
	assert.Equal(t, 2, Version(map[string]any{"schemaVersion": 2}))
}

func TestMigrate_FromUnversioned(t *testing.T) {
	doc := decode(t, `{
		"client": {"id": "casa-nova", "name": "Casa Nova"},
		"approvals": [{"id": "a1", "title": "Reel", "status": "pending"}],
		"needs": [{"id": "n1", "text": "Logo"}, {"id": "n2", "text": "Menu", "status": "done"}],
		"requests": [
			{"id": "r1", "type": "post", "completedAt": "2025-12-01T10:00:00.000Z", "createdAt": "2025-11-30T10:00:00.000Z"},
			{"id": "r2", "type": "story"}
		]
	}`)

	got, changed, err := Migrate(doc, Version(doc), now)
	require.NoError(t, err)
	assert.True(t, changed)

	want := decode(t, `{
		"schemaVersion": 2,
		"client": {"id": "casa-nova", "name": "Casa Nova"},
		"kpis": {"scheduled": 0, "waitingApproval": 0, "missingAssets": 0, "frustration": 0},
		"approvals": [{"id": "a1", "title": "Reel", "status": "pending", "change_notes": [], "tags": []}],
		"needs": [{"id": "n1", "text": "Logo", "status": "open"}, {"id": "n2", "text": "Menu", "status": "done"}],
		"requests": [
			{"id": "r1", "type": "post", "doneAt": "2025-12-01T10:00:00.000Z", "createdAt": "2025-11-30T10:00:00.000Z"},
			{"id": "r2", "type": "story", "createdAt": "2026-02-01T09:00:00.000Z"}
		],
		"assets": [],
		"activity": []
	}`)

	// Round-trip through JSON so numeric types compare equal.
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	if diff := cmp.Diff(want, decode(t, string(raw))); diff != "" {
		t.Errorf("migrated document mismatch (-want +got):\n%s", diff)
	}
}

func TestMigrate_DoneAtWins(t *testing.T) {
	doc := decode(t, `{"requests": [{"id": "r1", "doneAt": "2026-01-05T00:00:00.000Z", "completedAt": "2025-01-01T00:00:00.000Z"}]}`)

	got, _, err := Migrate(doc, 0, now)
	require.NoError(t, err)

	req := got["requests"].([]any)[0].(map[string]any)
	assert.Equal(t, "2026-01-05T00:00:00.000Z", req["doneAt"])
	assert.NotContains(t, req, "completedAt")
}

func TestMigrate_CurrentIsNoop(t *testing.T) {
	doc := map[string]any{"schemaVersion": float64(CurrentVersion), "approvals": []any{}}

	got, changed, err := Migrate(doc, CurrentVersion, now)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, doc, got)
}

func TestMigrate_Idempotent(t *testing.T) {
	doc := decode(t, `{"needs": [{"id": "n1"}]}`)
	first, changed, err := Migrate(doc, 0, now)
	require.NoError(t, err)
	require.True(t, changed)

	raw, err := json.Marshal(first)
	require.NoError(t, err)
	reloaded := decode(t, string(raw))

	second, changed, err := Migrate(reloaded, Version(reloaded), now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	if diff := cmp.Diff(reloaded, second); diff != "" {
		t.Errorf("second migration changed the document:\n%s", diff)
	}
}

func TestMigrate_FutureVersionRejected(t *testing.T) {
	_, _, err := Migrate(map[string]any{}, CurrentVersion+1, now)
	var unsupported *domain.ErrUnsupportedSchema
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, CurrentVersion+1, unsupported.Version)
}

func TestMigrate_FromV1KeepsExistingValues(t *testing.T) {
	doc := decode(t, `{"schemaVersion": 1, "kpis": {"frustration": 3}, "approvals": [{"id": "a", "tags": ["promo"]}]}`)

	got, changed, err := Migrate(doc, Version(doc), now)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, map[string]any{"frustration": float64(3)}, got["kpis"])
	a := got["approvals"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{"promo"}, a["tags"])
	assert.Equal(t, []any{}, a["change_notes"])
	assert.Equal(t, []any{}, got["needs"])
}
