package insights_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govpulse/internal/config"
	"govpulse/internal/db"
	"govpulse/internal/domain"
	"govpulse/internal/engine"
	"govpulse/internal/fetch"
	"govpulse/internal/insights"
	"govpulse/internal/migrate"
	"govpulse/internal/repo"
	"govpulse/internal/signal"
)

var reportNow = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func ptrF(f float64) *float64 { return &f }

func ptrI(i int) *int { return &i }

func actor(id, name, email string) domain.Actor {
	return domain.Actor{ID: id, DisplayName: name, Email: email}
}

func daysAgo(n int) *time.Time {
	t := reportNow.Add(-time.Duration(n) * 24 * time.Hour)
	return &t
}

// seed builds a small portfolio:
//
//	proj-1 active, score 80, one approval waiting 9 days on Dana
//	proj-2 active, one risk owned by Lee logged 5 days ago, one milestone due in 3 days
//	proj-3 closed, one approval waiting 10 days on Dana
//	proj-4 active, score 30, nothing pending
//	an unowned org-level dependency
func seed(t *testing.T) repo.Repo {
	t.Helper()
	ctx := context.Background()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(ctx, conn, dialect))

	eng := engine.New(conn, dialect, config.Default())
	eng.Now = func() time.Time { return *daysAgo(5) }

	_, err = eng.AddActor(ctx, actor("act-dana", "Dana Reviewer", ""), "seed")
	require.NoError(t, err)
	_, err = eng.AddActor(ctx, actor("act-lee", "", "lee@example.com"), "seed")
	require.NoError(t, err)

	for _, p := range []engine.ProjectCreateOptions{
		{ID: "proj-1", Code: "PAY", Title: "Payments", HealthScore: ptrF(80)},
		{ID: "proj-2", Code: "LED", Title: "Ledger"},
		{ID: "proj-3", Code: "ARC", Title: "Archive", Status: "closed"},
		{ID: "proj-4", Code: "IDL", Title: "Idle", HealthScore: ptrF(30)},
	} {
		_, err := eng.CreateProject(ctx, p)
		require.NoError(t, err)
	}

	_, err = eng.SubmitApproval(ctx, engine.ApprovalOptions{ID: "ap-1", ProjectID: "proj-1", Stage: "Design review", Approver: "act-dana", SubmittedAt: daysAgo(9)})
	require.NoError(t, err)
	_, err = eng.SubmitApproval(ctx, engine.ApprovalOptions{ID: "ap-3", ProjectID: "proj-3", Stage: "Closure", Approver: "act-dana", SubmittedAt: daysAgo(10)})
	require.NoError(t, err)
	_, err = eng.LogRaidItem(ctx, engine.RaidOptions{ID: "rk-1", ProjectID: "proj-2", Kind: "risk", Title: "Vendor slip", Owner: "lee@example.com"})
	require.NoError(t, err)
	_, err = eng.AddMilestone(ctx, engine.MilestoneOptions{ID: "ms-1", ProjectID: "proj-2", Title: "Beta", DueAt: reportNow.Add(72 * time.Hour)})
	require.NoError(t, err)
	_, err = eng.LogRaidItem(ctx, engine.RaidOptions{ID: "dep-1", Kind: "dependency", Title: "Platform upgrade"})
	require.NoError(t, err)

	return eng.Repo
}

func newService(store insights.Store) insights.Service {
	return insights.Service{
		Store:  store,
		Config: config.Default(),
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return reportNow },
	}
}

func projectIDs(rows []signal.ProjectRow) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProjectID)
	}
	return ids
}

func TestBuild_ActiveScope(t *testing.T) {
	svc := newService(seed(t))
	report, err := svc.Build(context.Background(), insights.Options{})
	require.NoError(t, err)

	assert.Empty(t, report.Errors)
	assert.False(t, report.Degraded())
	require.Len(t, report.Sources, 4)
	for _, s := range report.Sources {
		assert.True(t, s.OK, s.Name)
	}

	require.Equal(t, []string{"proj-1", "proj-2", "proj-4"}, projectIDs(report.Projects))
	p1, p2, p4 := report.Projects[0], report.Projects[1], report.Projects[2]

	assert.Equal(t, signal.RAGRed, p1.RAG)
	assert.Equal(t, 1, p1.Counts.Total, "primary and fallback copies must collapse")
	assert.Equal(t, 9, p1.MaxAgeDays)
	assert.Equal(t, "Dana Reviewer", p1.DominantActor)
	assert.Equal(t, "Design review", p1.DominantStage)
	assert.Equal(t, "PAY", p1.Code)

	assert.Equal(t, signal.RAGAmber, p2.RAG)
	assert.Equal(t, 2, p2.Counts.Total)
	assert.Equal(t, 1, p2.DueSoon)

	assert.Equal(t, signal.RAGGreen, p4.RAG)
	assert.Zero(t, p4.Counts.Total)

	require.Len(t, report.Bottlenecks, 2)
	assert.Equal(t, "Dana Reviewer", report.Bottlenecks[0].ActorLabel)
	assert.Equal(t, 1, report.Bottlenecks[0].PendingCount)
	assert.Equal(t, "lee@example.com", report.Bottlenecks[1].ActorLabel)

	pf := report.Portfolio
	assert.Equal(t, 3, pf.ProjectCount)
	assert.Equal(t, 1, pf.BreachedTotal)
	assert.Equal(t, 1, pf.AtRiskTotal)
	assert.Equal(t, 1, pf.BlockedProjectCount)
	assert.Equal(t, 2, pf.ScoredProjectCount)
	assert.Equal(t, 55.0, pf.ScoreAverage)
	assert.NotEmpty(t, report.Narrative)

	assert.ElementsMatch(t, []signal.Disagreement{
		{ProjectID: "proj-1", Score: 80, RAG: signal.RAGRed},
		{ProjectID: "proj-4", Score: 30, RAG: signal.RAGGreen},
	}, report.Disagreements)
}

func TestBuild_AllScopeIncludesClosedProjects(t *testing.T) {
	svc := newService(seed(t))
	report, err := svc.Build(context.Background(), insights.Options{ScopeMode: config.ScopeAll})
	require.NoError(t, err)

	assert.Contains(t, projectIDs(report.Projects), "proj-3")
	require.NotEmpty(t, report.Bottlenecks)
	assert.Equal(t, "Dana Reviewer", report.Bottlenecks[0].ActorLabel)
	assert.Equal(t, 2, report.Bottlenecks[0].PendingCount)
	assert.Equal(t, 2, report.Bottlenecks[0].ProjectsAffected)
}

func TestBuild_ThresholdOverrides(t *testing.T) {
	svc := newService(seed(t))
	report, err := svc.Build(context.Background(), insights.Options{RiskDays: ptrI(10), BreachDays: ptrI(20)})
	require.NoError(t, err)
	for _, row := range report.Projects {
		assert.Equal(t, signal.RAGGreen, row.RAG, row.ProjectID)
	}
	assert.Equal(t, 10, report.Settings.Thresholds.RiskDays)
}

// flakyStore fails the queries named in fail and delegates the rest.
type flakyStore struct {
	insights.Store
	fail map[string]bool
}

var errDown = errors.New("connection refused")

func (f flakyStore) ConsolidatedSignals(ctx context.Context, now time.Time) ([]repo.SignalRow, error) {
	if f.fail[config.SourceConsolidated] {
		return nil, errDown
	}
	return f.Store.ConsolidatedSignals(ctx, now)
}

func (f flakyStore) ApprovalSignals(ctx context.Context, now time.Time) ([]repo.SignalRow, error) {
	if f.fail[config.SourceApprovals] {
		return nil, errDown
	}
	return f.Store.ApprovalSignals(ctx, now)
}

func (f flakyStore) RaidSignals(ctx context.Context, now time.Time) ([]repo.SignalRow, error) {
	if f.fail[config.SourceRaid] {
		return nil, errDown
	}
	return f.Store.RaidSignals(ctx, now)
}

func (f flakyStore) MilestoneSignals(ctx context.Context, now time.Time) ([]repo.SignalRow, error) {
	if f.fail[config.SourceMilestones] {
		return nil, errDown
	}
	return f.Store.MilestoneSignals(ctx, now)
}

func TestBuild_FallbacksStandInForPrimary(t *testing.T) {
	store := seed(t)
	full, err := newService(store).Build(context.Background(), insights.Options{})
	require.NoError(t, err)

	svc := newService(flakyStore{Store: store, fail: map[string]bool{config.SourceConsolidated: true}})
	partial, err := svc.Build(context.Background(), insights.Options{})
	require.NoError(t, err)

	assert.True(t, partial.Degraded())
	assert.Contains(t, partial.Errors[config.SourceConsolidated], "connection refused")
	assert.Equal(t, full.Projects, partial.Projects)
	assert.Equal(t, full.Bottlenecks, partial.Bottlenecks)
}

func TestBuild_PartialFailureKeepsOtherTiles(t *testing.T) {
	store := seed(t)
	svc := newService(flakyStore{Store: store, fail: map[string]bool{
		config.SourceConsolidated: true,
		config.SourceApprovals:    true,
	}})
	report, err := svc.Build(context.Background(), insights.Options{})
	require.NoError(t, err)

	assert.Len(t, report.Errors, 2)
	require.Equal(t, "proj-2", report.Projects[0].ProjectID)
	for _, row := range report.Projects {
		if row.ProjectID == "proj-1" {
			assert.Zero(t, row.Counts.Total, "approvals were not read")
			assert.Equal(t, signal.RAGGreen, row.RAG)
		}
	}
	require.Len(t, report.Bottlenecks, 1)
	assert.Equal(t, "lee@example.com", report.Bottlenecks[0].ActorLabel)
}

func TestBuild_Starvation(t *testing.T) {
	store := seed(t)
	svc := newService(flakyStore{Store: store, fail: map[string]bool{
		config.SourceConsolidated: true,
		config.SourceApprovals:    true,
		config.SourceRaid:         true,
		config.SourceMilestones:   true,
	}})
	report, err := svc.Build(context.Background(), insights.Options{})
	require.ErrorIs(t, err, fetch.ErrStarved)
	assert.Len(t, report.Errors, 4)
	assert.Nil(t, report.Projects)
	assert.Len(t, report.Sources, 4)
}

func TestBuild_RemoteSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/risks":
			assert.Equal(t, "secret", r.Header.Get("X-Token"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[{"id":"ext-1","project_id":"proj-4","owner_name":"Vendor PM","submitted_at":"2023-12-20T00:00:00Z"}]}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`<html><body><h1>502 Bad Gateway</h1></body></html>`))
		}
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Sources.Remote = []config.RemoteSource{
		{Name: "vendor-risks", URL: srv.URL + "/risks", Kind: "risk", Headers: map[string]string{"X-Token": "secret"}},
		{Name: "vendor-gateway", URL: srv.URL + "/down"},
	}
	svc := newService(seed(t))
	svc.Config = cfg
	svc.Client = srv.Client()

	report, err := svc.Build(context.Background(), insights.Options{})
	require.NoError(t, err)

	assert.Contains(t, report.Errors["vendor-gateway"], "502")
	assert.NotContains(t, report.Errors["vendor-gateway"], "<html>")

	require.NotEmpty(t, report.Projects)
	idle := report.Projects[0]
	assert.Equal(t, "proj-4", idle.ProjectID, "remote risk is the oldest breach")
	assert.Equal(t, signal.RAGRed, idle.RAG)
	assert.Equal(t, 21, idle.MaxAgeDays)
	assert.Equal(t, "Vendor PM", report.Bottlenecks[0].ActorLabel)
}

func TestBuild_PriorSnapshot(t *testing.T) {
	svc := newService(seed(t))
	prior := &signal.PortfolioRollup{ProjectCount: 3, BreachedTotal: 3, AtRiskTotal: 1, ScoreAverage: 50}
	report, err := svc.Build(context.Background(), insights.Options{Prior: prior})
	require.NoError(t, err)
	require.NotNil(t, report.Portfolio.Deltas)
	assert.Equal(t, signal.Down, report.Portfolio.Deltas.BreachedTotal.Direction)
	assert.Equal(t, -2.0, report.Portfolio.Deltas.BreachedTotal.Value)
	assert.Equal(t, 3, prior.BreachedTotal, "prior must not be modified")
}

func TestBuild_Cancelled(t *testing.T) {
	svc := newService(seed(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Build(ctx, insights.Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestResolve(t *testing.T) {
	cfg := config.Default()
	st, err := insights.Resolve(cfg, insights.Options{})
	require.NoError(t, err)
	assert.Equal(t, signal.DefaultThresholds, st.Thresholds)
	assert.Equal(t, config.ScopeActive, st.ScopeMode)

	for name, opts := range map[string]insights.Options{
		"negative":        {RiskDays: ptrI(-1)},
		"breach<risk":     {RiskDays: ptrI(9)},
		"unknown scope":   {ScopeMode: "mine"},
		"negative window": {WindowDays: ptrI(-3)},
	} {
		_, err := insights.Resolve(cfg, opts)
		assert.ErrorIs(t, err, insights.ErrInvalidOptions, name)
	}
}

func TestPlan(t *testing.T) {
	cfg := config.Default()
	cfg.Sources.Primary = ""
	cfg.Sources.Remote = []config.RemoteSource{{Name: "feed", URL: "https://example.com/feed", Kind: "issues"}}
	svc := insights.Service{Store: repo.Repo{}, Config: cfg}

	plan := svc.Plan(reportNow)
	assert.Nil(t, plan.Primary)
	require.Len(t, plan.Fallbacks, 4)
	assert.Equal(t, signal.KindApproval, plan.Fallbacks[0].Kind)
	assert.Equal(t, "feed", plan.Fallbacks[3].Name)
	assert.Equal(t, signal.KindIssue, plan.Fallbacks[3].Kind)
}
