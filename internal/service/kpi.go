package service

import (
	"strings"
	"time"

	"github.com/twofly/client-portal-go/internal/domain"
)

// ScheduledWindow is how far ahead an approval's postDate counts as scheduled.
const ScheduledWindow = 15 * 24 * time.Hour

const dateOnly = "2006-01-02"

var postDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	domain.TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// CalculateScheduledPosts counts approvals whose postDate falls inside
// [now, now+15 days], both ends included. A date-only postDate is compared by
// calendar day in UTC. Approvals without a parseable postDate are skipped.
func CalculateScheduledPosts(approvals []domain.Approval, now time.Time) int {
	now = now.UTC()
	end := now.Add(ScheduledWindow)
	today := truncateDay(now)
	lastDay := today.AddDate(0, 0, 15)

	count := 0
	for _, a := range approvals {
		raw := strings.TrimSpace(a.PostDate)
		if raw == "" {
			continue
		}
		if d, err := time.Parse(dateOnly, raw); err == nil {
			if !d.Before(today) && !d.After(lastDay) {
				count++
			}
			continue
		}
		t, ok := parsePostDate(raw)
		if !ok {
			continue
		}
		if !t.Before(now) && !t.After(end) {
			count++
		}
	}
	return count
}

// CountWaitingApproval counts approvals with no status or status pending.
func CountWaitingApproval(approvals []domain.Approval) int {
	count := 0
	for _, a := range approvals {
		if a.Status == "" || a.Status == domain.ApprovalPending {
			count++
		}
	}
	return count
}

// CountMissingAssets counts needs that are not done.
func CountMissingAssets(needs []domain.Need) int {
	count := 0
	for _, n := range needs {
		if n.Status != domain.StatusDone {
			count++
		}
	}
	return count
}

// ComputeKPIs derives every KPI from the document. Frustration is not
// derived and is carried over unchanged.
func ComputeKPIs(state *domain.PortalState, now time.Time) domain.KPIs {
	return domain.KPIs{
		Scheduled:       CalculateScheduledPosts(state.Approvals, now),
		WaitingApproval: CountWaitingApproval(state.Approvals),
		MissingAssets:   CountMissingAssets(state.Needs),
		Frustration:     state.KPIs.Frustration,
	}
}

func parsePostDate(raw string) (time.Time, bool) {
	for _, layout := range postDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
