package service_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/service"
)

var kpiNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestCalculateScheduledPosts_Window(t *testing.T) {
	tests := []struct {
		name     string
		postDate string
		want     int
	}{
		{"now", domain.FormatTimestamp(kpiNow), 1},
		{"in five days", kpiNow.Add(5 * 24 * time.Hour).Format(time.RFC3339), 1},
		{"exactly fifteen days", kpiNow.Add(service.ScheduledWindow).Format(time.RFC3339), 1},
		{"fifteen days and a second", kpiNow.Add(service.ScheduledWindow + time.Second).Format(time.RFC3339), 0},
		{"sixteen days", kpiNow.Add(16 * 24 * time.Hour).Format(time.RFC3339), 0},
		{"an hour ago", kpiNow.Add(-time.Hour).Format(time.RFC3339), 0},
		{"date only today", "2026-03-10", 1},
		{"date only day fifteen", "2026-03-25", 1},
		{"date only day sixteen", "2026-03-26", 0},
		{"date only yesterday", "2026-03-09", 0},
		{"local datetime", "2026-03-12T09:30", 1},
		{"empty", "", 0},
		{"garbage", "next tuesday", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.CalculateScheduledPosts([]domain.Approval{{ID: "a", PostDate: tt.postDate}}, kpiNow)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeKPIs(t *testing.T) {
	state := &domain.PortalState{
		KPIs: domain.KPIs{Scheduled: 99, WaitingApproval: 99, MissingAssets: 99, Frustration: 3},
		Approvals: []domain.Approval{
			{ID: "1", Status: "", PostDate: "2026-03-11"},
			{ID: "2", Status: domain.ApprovalPending},
			{ID: "3", Status: domain.ApprovalApproved, PostDate: "2026-03-20"},
			{ID: "4", Status: domain.ApprovalCopyPending},
		},
		Needs: []domain.Need{
			{ID: "n1", Status: domain.StatusOpen},
			{ID: "n2", Status: domain.StatusDone},
			{ID: "n3", Status: ""},
		},
	}

	got := service.ComputeKPIs(state, kpiNow)

	assert.Equal(t, domain.KPIs{Scheduled: 2, WaitingApproval: 2, MissingAssets: 2, Frustration: 3}, got)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Casa Nova":             "casa-nova",
		"  Café  São Paulo ":    "cafe-sao-paulo",
		"ACME, Inc.":            "acme-inc",
		"--x--":                 "x",
		"!!!":                   "",
		"Jose\u0301phine":       "josephine",
		"Cafe\u0301 Nin\u0303o": "cafe-nino",
	}
	for in, want := range tests {
		got := service.Slugify(in)
		assert.Equal(t, want, got, in)
		if want != "" {
			assert.True(t, service.ValidSlug(got), got)
		}
	}
	assert.False(t, service.ValidSlug("Acme"))
	assert.False(t, service.ValidSlug("acme--2"))

	long := service.Slugify(strings.Repeat("ab ", 50))
	assert.True(t, service.ValidSlug(long), long)
	assert.LessOrEqual(t, len(long), 64)
}
