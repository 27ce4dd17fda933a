package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()

	m.IncrLogin("staff-password", "success")
	m.IncrLogin("client-password", "success")
	m.IncrLogin("staff-password", "failure")
	m.IncrRateLimited("login")
	m.IncrPortalLoad()
	m.IncrPortalLoad()
	m.IncrPortalMigration()
	m.IncrExternalError("google-drive")

	stats := m.CacheStats("portal")
	stats.Hit()
	stats.Hit()
	stats.Hit()
	stats.Miss()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.LoginSuccess)
	assert.Equal(t, int64(1), snap.LoginFailure)
	assert.Equal(t, int64(1), snap.RateLimited)
	assert.Equal(t, int64(2), snap.PortalLoads)
	assert.Equal(t, int64(1), snap.PortalMigrations)
	assert.Equal(t, int64(1), snap.ExternalErrors)
	assert.InDelta(t, 0.75, snap.CacheHitRate, 1e-9)
}

func TestMetrics_SnapshotEmpty(t *testing.T) {
	snap := NewMetrics().Snapshot()
	assert.Zero(t, snap.LoginSuccess)
	assert.Zero(t, snap.CacheHitRate)
}
