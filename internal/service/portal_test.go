package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/migration"
	"github.com/twofly/client-portal-go/internal/service"
)

func TestPortal_NewClientHasDefaultDocument(t *testing.T) {
	env := newEnv(t)

	st, err := env.portal.Load(context.Background(), env.owner, testClientID)
	require.NoError(t, err)

	assert.Equal(t, migration.CurrentVersion, st.SchemaVersion)
	assert.Equal(t, testAgency, st.AgencyID)
	assert.Equal(t, domain.PortalClient{ID: testClientID, Name: "Casa Nova"}, st.Client)
	assert.Equal(t, domain.KPIs{}, st.KPIs)
	assert.Empty(t, st.Approvals)
	assert.NotNil(t, st.Assets)
	assert.NotNil(t, st.Activity)
}

// Weekend Promo: one pending approval five days out is scheduled and waiting;
// approving it keeps it scheduled and clears the waiting count.
func TestPortal_CasaNovaScenario(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	postDate := time.Now().UTC().AddDate(0, 0, 5).Format("2006-01-02")
	st, err := env.portal.AddApproval(ctx, env.owner, testClientID, &domain.ApprovalInput{
		Title:    strPtr("Weekend Promo"),
		PostDate: strPtr(postDate),
		Status:   strPtr(domain.ApprovalPending),
	})
	require.NoError(t, err)
	require.Len(t, st.Approvals, 1)

	overview, err := env.portal.Overview(ctx, env.owner, testClientID)
	require.NoError(t, err)
	require.Len(t, overview, 1)
	assert.Equal(t, 1, overview[0].KPIs.Scheduled)
	assert.Equal(t, 1, overview[0].KPIs.WaitingApproval)

	_, err = env.portal.UpdateApproval(ctx, env.owner, testClientID, st.Approvals[0].ID, &domain.ApprovalInput{
		Status: strPtr(domain.ApprovalApproved),
	})
	require.NoError(t, err)

	overview, err = env.portal.Overview(ctx, env.owner, "")
	require.NoError(t, err)
	require.Len(t, overview, 1)
	assert.Equal(t, 1, overview[0].KPIs.Scheduled)
	assert.Equal(t, 0, overview[0].KPIs.WaitingApproval)
	require.NotNil(t, overview[0].LastActivity)
	assert.Contains(t, overview[0].LastActivity.Text, "Weekend Promo")
}

func TestPortal_LegacyDocumentIsMigratedAndPersisted(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	legacy := map[string]any{
		"client": map[string]any{"id": testClientID, "name": "Casa Nova"},
		"kpis":   map[string]any{"scheduled": 0, "waitingApproval": 0, "missingAssets": 0, "frustration": 2},
		"approvals": []any{
			map[string]any{"id": "a1", "title": "Reel", "status": "pending"},
		},
		"needs": []any{
			map[string]any{"id": "n1", "text": "Logo in SVG", "severity": "warn"},
		},
		"requests": []any{
			map[string]any{"id": "r1", "type": "post", "details": "Promo", "by": "client", "status": "done", "completedAt": "2025-01-02T10:00:00.000Z"},
		},
		"seen": true,
	}
	require.NoError(t, env.store.SavePortalDocument(ctx, testClientID, legacy))
	env.portal.InvalidateAll()

	st, err := env.portal.Load(ctx, env.owner, testClientID)
	require.NoError(t, err)

	require.Len(t, st.Requests, 1)
	assert.Equal(t, "2025-01-02T10:00:00.000Z", st.Requests[0].DoneAt)
	assert.NotEmpty(t, st.Requests[0].CreatedAt)
	assert.Equal(t, domain.StatusOpen, st.Needs[0].Status)
	assert.Equal(t, []string{}, st.Approvals[0].ChangeNotes)
	assert.Equal(t, 2, st.KPIs.Frustration)

	raw, err := env.store.GetPortalDocument(ctx, testClientID)
	require.NoError(t, err)
	assert.EqualValues(t, migration.CurrentVersion, raw[migration.VersionKey])
	req := raw["requests"].([]any)[0].(map[string]any)
	assert.NotContains(t, req, "completedAt")

	// A second load of the persisted document changes nothing.
	env.portal.InvalidateAll()
	again, err := env.portal.Load(ctx, env.owner, testClientID)
	require.NoError(t, err)
	if diff := cmp.Diff(st, again); diff != "" {
		t.Errorf("second load differs (-first +second):\n%s", diff)
	}
	rawAgain, err := env.store.GetPortalDocument(ctx, testClientID)
	require.NoError(t, err)
	if diff := cmp.Diff(raw, rawAgain); diff != "" {
		t.Errorf("stored document rewritten (-first +second):\n%s", diff)
	}
}

func TestPortal_FutureSchemaIsRejected(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.SavePortalDocument(ctx, testClientID, map[string]any{
		"schemaVersion": migration.CurrentVersion + 1,
	}))
	env.portal.InvalidateAll()

	_, err := env.portal.Load(ctx, env.owner, testClientID)
	var unsupported *domain.ErrUnsupportedSchema
	require.ErrorAs(t, err, &unsupported)
}

func TestPortal_ClientSessionCannotReachOtherClient(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	other, err := env.clients.Create(ctx, env.owner, &domain.CreateClientRequest{Name: "Other Co", Password: "other-pass-123"})
	require.NoError(t, err)

	p := env.clientSession(t, testClientID, testClientPass)

	_, err = env.portal.Load(ctx, p, other.ID)
	var forbidden *domain.ErrForbidden
	require.ErrorAs(t, err, &forbidden)

	st, err := env.portal.Load(ctx, p, testClientID)
	require.NoError(t, err)
	assert.Equal(t, testClientID, st.Client.ID)

	// Agency endpoints are closed to portal sessions.
	_, err = env.portal.AddNeed(ctx, p, testClientID, &domain.NeedInput{Text: strPtr("x")})
	require.ErrorAs(t, err, &forbidden)
}

func TestPortal_OtherAgencyGetsNotFound(t *testing.T) {
	env := newEnv(t)
	stranger := &domain.Principal{Kind: domain.PrincipalStaff, UserID: "u-x", AgencyID: "other-agency", Role: domain.RoleOwner}

	_, err := env.portal.Load(context.Background(), stranger, testClientID)
	assert.True(t, domain.IsNotFound(err), "got %v", err)
}

func TestPortal_ClientDecisionAndRequest(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	st, err := env.portal.AddApproval(ctx, env.owner, testClientID, &domain.ApprovalInput{Title: strPtr("Carousel")})
	require.NoError(t, err)
	approvalID := st.Approvals[0].ID
	assert.False(t, st.Seen)

	p := env.clientSession(t, testClientID, testClientPass)

	st, err = env.portal.ClientDecideApproval(ctx, p, approvalID, &domain.ApprovalDecision{Status: domain.ApprovalChanges, Note: "Use the blue logo"})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalChanges, st.Approvals[0].Status)
	assert.Equal(t, []string{"Use the blue logo"}, st.Approvals[0].ChangeNotes)

	_, err = env.portal.ClientDecideApproval(ctx, p, approvalID, &domain.ApprovalDecision{Status: domain.ApprovalPending})
	var invalid *domain.ErrValidation
	require.ErrorAs(t, err, &invalid)

	st, err = env.portal.ClientCreateRequest(ctx, p, &domain.RequestInput{Type: strPtr("story"), Details: strPtr("Easter story"), By: strPtr("agency")})
	require.NoError(t, err)
	require.Len(t, st.Requests, 1)
	assert.Equal(t, "client", st.Requests[0].By)
	assert.Equal(t, domain.StatusOpen, st.Requests[0].Status)

	st, err = env.portal.MarkSeen(ctx, p)
	require.NoError(t, err)
	assert.True(t, st.Seen)
}

func TestPortal_SaveFromClientOnlyTakesClientFields(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	st, err := env.portal.AddApproval(ctx, env.owner, testClientID, &domain.ApprovalInput{Title: strPtr("Reel"), Caption: strPtr("original")})
	require.NoError(t, err)
	_, err = env.portal.SetFrustration(ctx, env.owner, testClientID, &domain.FrustrationInput{Frustration: 1})
	require.NoError(t, err)

	p := env.clientSession(t, testClientID, testClientPass)
	tampered := *st
	tampered.Approvals = []domain.Approval{st.Approvals[0]}
	tampered.Approvals[0].Status = domain.ApprovalApproved
	tampered.Approvals[0].Caption = "hacked"
	tampered.KPIs.Frustration = 0
	tampered.Needs = []domain.Need{{ID: "n", Text: "fake", Status: domain.StatusOpen}}
	tampered.Requests = []domain.Request{{Type: "post", Details: "New promo", By: "agency", Status: domain.StatusDone}}
	tampered.Seen = true

	got, err := env.portal.SaveFromClient(ctx, p, &tampered)
	require.NoError(t, err)

	assert.Equal(t, domain.ApprovalApproved, got.Approvals[0].Status)
	assert.Equal(t, "original", got.Approvals[0].Caption)
	assert.Equal(t, 1, got.KPIs.Frustration)
	assert.Empty(t, got.Needs)
	require.Len(t, got.Requests, 1)
	assert.Equal(t, "client", got.Requests[0].By)
	assert.Equal(t, domain.StatusOpen, got.Requests[0].Status)
	assert.True(t, got.Seen)
}

func TestPortal_SaveFromClientCannotUndoDecision(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	st, err := env.portal.AddApproval(ctx, env.owner, testClientID, &domain.ApprovalInput{Title: strPtr("Reel")})
	require.NoError(t, err)
	id := st.Approvals[0].ID

	p := env.clientSession(t, testClientID, testClientPass)
	st, err = env.portal.ClientDecideApproval(ctx, p, id, &domain.ApprovalDecision{Status: domain.ApprovalApproved})
	require.NoError(t, err)

	for _, status := range []string{"", domain.ApprovalPending, domain.ApprovalCopyPending} {
		doc := *st
		doc.Approvals = []domain.Approval{st.Approvals[0]}
		doc.Approvals[0].Status = status
		_, err = env.portal.SaveFromClient(ctx, p, &doc)
		var invalid *domain.ErrValidation
		require.ErrorAs(t, err, &invalid, "status %q", status)
	}

	doc := *st
	doc.Approvals = []domain.Approval{st.Approvals[0]}
	doc.Seen = true
	got, err := env.portal.SaveFromClient(ctx, p, &doc)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, got.Approvals[0].Status)
	assert.True(t, got.Seen)
}

func TestPortal_SaveRecomputesKPIsAndForcesIdentity(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	doc := &domain.PortalState{
		AgencyID: "someone-else",
		Client:   domain.PortalClient{ID: "spoofed", Name: "Casa Nova"},
		KPIs:     domain.KPIs{Scheduled: 40, WaitingApproval: 40, MissingAssets: 40, Frustration: 4},
		Approvals: []domain.Approval{
			{Title: "A", Status: ""},
		},
		Needs: []domain.Need{{Text: "Photos", Severity: domain.SeverityBad}},
	}
	res, err := env.portal.Save(ctx, env.owner, testClientID, doc)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	st := res.State
	assert.Equal(t, testAgency, st.AgencyID)
	assert.Equal(t, testClientID, st.Client.ID)
	assert.Equal(t, domain.KPIs{Scheduled: 0, WaitingApproval: 1, MissingAssets: 1, Frustration: 4}, st.KPIs)
	assert.NotEmpty(t, st.Approvals[0].ID)
	assert.Equal(t, domain.StatusOpen, st.Needs[0].Status)

	_, err = env.portal.Save(ctx, env.owner, testClientID, &domain.PortalState{
		Approvals: []domain.Approval{{Title: "bad", Status: "published"}},
	})
	var invalid *domain.ErrValidation
	require.ErrorAs(t, err, &invalid)
}

func TestPortal_OversizedDocumentDropsInlineImages(t *testing.T) {
	env := newEnvWith(t, envOptions{maxDocBytes: 4096})
	ctx := context.Background()

	inline := "data:image/png;base64," + strings.Repeat("A", 8000)
	res, err := env.portal.Save(ctx, env.owner, testClientID, &domain.PortalState{
		Approvals: []domain.Approval{{Title: "Big", ImageURL: inline, UploadedImages: []string{inline, "https://cdn.test/a.png"}}},
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Empty(t, res.State.Approvals[0].ImageURL)
	assert.Equal(t, []string{"https://cdn.test/a.png"}, res.State.Approvals[0].UploadedImages)

	_, err = env.portal.Save(ctx, env.owner, testClientID, &domain.PortalState{
		Approvals: []domain.Approval{{Title: strings.Repeat("t", 8000)}},
	})
	var invalid *domain.ErrValidation
	require.True(t, errors.As(err, &invalid), "got %v", err)
}

func TestPortal_OversizedMutationKeepsStoredImages(t *testing.T) {
	env := newEnvWith(t, envOptions{maxDocBytes: 6000})
	ctx := context.Background()

	inline := "data:image/png;base64," + strings.Repeat("A", 3000)
	st, err := env.portal.AddApproval(ctx, env.owner, testClientID, &domain.ApprovalInput{
		Title:    strPtr("First"),
		ImageURL: strPtr(inline),
	})
	require.NoError(t, err)
	require.Len(t, st.Approvals, 1)

	_, err = env.portal.AddApproval(ctx, env.owner, testClientID, &domain.ApprovalInput{
		Title:    strPtr("Second"),
		ImageURL: strPtr(inline),
	})
	var invalid *domain.ErrValidation
	require.ErrorAs(t, err, &invalid)

	st, err = env.portal.Load(ctx, env.owner, testClientID)
	require.NoError(t, err)
	require.Len(t, st.Approvals, 1)
	assert.Equal(t, inline, st.Approvals[0].ImageURL)
}

func TestPortal_NeedLifecycle(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	st, err := env.portal.AddNeed(ctx, env.owner, testClientID, &domain.NeedInput{Text: strPtr("Brand fonts")})
	require.NoError(t, err)
	require.Len(t, st.Needs, 1)
	assert.Equal(t, 1, st.KPIs.MissingAssets)
	id := st.Needs[0].ID

	st, err = env.portal.UpdateNeed(ctx, env.owner, testClientID, id, &domain.NeedInput{Status: strPtr(domain.StatusDone)})
	require.NoError(t, err)
	assert.Equal(t, 0, st.KPIs.MissingAssets)
	assert.NotEmpty(t, st.Needs[0].DoneAt)

	st, err = env.portal.DeleteNeed(ctx, env.owner, testClientID, id)
	require.NoError(t, err)
	assert.Empty(t, st.Needs)

	_, err = env.portal.DeleteNeed(ctx, env.owner, testClientID, id)
	assert.True(t, domain.IsNotFound(err))
}

func TestPortal_LoadReturnsCopies(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.portal.AddAsset(ctx, env.owner, testClientID, &domain.AssetInput{Title: "Logo", URL: "https://cdn.test/logo.svg", Type: domain.AssetLogo})
	require.NoError(t, err)

	first, err := env.portal.Load(ctx, env.owner, testClientID)
	require.NoError(t, err)
	first.Assets[0].Title = "mutated"
	first.Assets = nil

	second, err := env.portal.Load(ctx, env.owner, testClientID)
	require.NoError(t, err)
	require.Len(t, second.Assets, 1)
	assert.Equal(t, "Logo", second.Assets[0].Title)
}

func TestLogActivity_KeepsNewestEntries(t *testing.T) {
	st := &domain.PortalState{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < service.MaxActivity; i++ {
		service.LogActivity(st, now, "entry %d", i)
	}
	require.Len(t, st.Activity, service.MaxActivity)

	service.LogActivity(st, now, "latest")
	require.Len(t, st.Activity, service.MaxActivity)
	assert.Equal(t, "entry 1", st.Activity[0].Text)
	assert.Equal(t, "latest", st.LastActivity().Text)
}
