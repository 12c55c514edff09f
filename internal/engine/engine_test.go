package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"govpulse/internal/config"
	"govpulse/internal/db"
	"govpulse/internal/domain"
	"govpulse/internal/engine"
	"govpulse/internal/migrate"
	"govpulse/internal/repo"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, dialect, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, dialect, config.Default())
	eng.Now = func() time.Time { return fixedNow }
	eng.Events.Now = eng.Now
	if _, err := eng.CreateProject(ctx, engine.ProjectCreateOptions{ID: "proj-1", Code: "P1", Title: "Payments", ActorID: "tester"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func ptrF(f float64) *float64 { return &f }

func domainActor(id, name, email string) domain.Actor {
	return domain.Actor{ID: id, DisplayName: name, Email: email}
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "  "}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected invalid for empty title, got %v", err)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "x", Status: "sleeping"}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected invalid for unknown status, got %v", err)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "x", HealthScore: ptrF(120)}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected invalid for score out of range, got %v", err)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "proj-1", Title: "dup"}); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict for duplicate id, got %v", err)
	}
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "Ledger"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == "" || p.Status != "active" || p.CreatedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected project %+v", p)
	}
}

func TestUpdateProject(t *testing.T) {
	env := newTestEnv(t)
	status := "paused"
	p, err := env.Engine.UpdateProject(env.Ctx, "P1", repo.ProjectUpdate{Status: &status, HealthScore: ptrF(64)}, "tester")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Status != "paused" || p.HealthScore == nil || *p.HealthScore != 64 {
		t.Fatalf("unexpected project %+v", p)
	}
	p, err = env.Engine.UpdateProject(env.Ctx, "proj-1", repo.ProjectUpdate{ClearScore: true}, "tester")
	if err != nil {
		t.Fatalf("clear score: %v", err)
	}
	if p.HealthScore != nil {
		t.Fatalf("expected score cleared, got %v", *p.HealthScore)
	}
	if _, err := env.Engine.UpdateProject(env.Ctx, "proj-1", repo.ProjectUpdate{}, "tester"); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected invalid for empty update, got %v", err)
	}
	if _, err := env.Engine.UpdateProject(env.Ctx, "missing", repo.ProjectUpdate{Status: &status}, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApprovalLifecycle(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.AddActor(env.Ctx, domainActor("act-1", "Dana Reviewer", "dana@example.com"), "tester"); err != nil {
		t.Fatalf("add actor: %v", err)
	}
	submitted := fixedNow.Add(-5 * 24 * time.Hour)
	step, err := env.Engine.SubmitApproval(env.Ctx, engine.ApprovalOptions{
		ProjectID:   "proj-1",
		Stage:       "Design review",
		Approver:    "dana@example.com",
		SubmittedAt: &submitted,
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if step.ApproverID == nil || *step.ApproverID != "act-1" {
		t.Fatalf("approver not resolved by email: %+v", step.ApproverID)
	}
	if step.Status != "pending" {
		t.Fatalf("expected pending, got %s", step.Status)
	}

	if _, err := env.Engine.DecideApproval(env.Ctx, step.ID, "maybe", "", "tester"); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected invalid decision, got %v", err)
	}
	decided, err := env.Engine.DecideApproval(env.Ctx, step.ID, "Approved", "looks good", "tester")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Status != "approved" || decided.DecidedAt == nil || decided.DecisionNote != "looks good" {
		t.Fatalf("unexpected decided step %+v", decided)
	}
	if _, err := env.Engine.DecideApproval(env.Ctx, step.ID, "rejected", "", "tester"); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected second decision to be refused, got %v", err)
	}
}

func TestSubmitApprovalUnknownApprover(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SubmitApproval(env.Ctx, engine.ApprovalOptions{ProjectID: "proj-1", Stage: "Gate 1", Approver: "ghost"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unknown approver, got %v", err)
	}
	steps, err := env.Engine.Repo.ListApprovals(env.Ctx, repo.ApprovalFilters{ProjectID: "proj-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(steps) != 0 {
		t.Fatalf("failed submit must not persist, got %d steps", len(steps))
	}
}

func TestRaidStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	it, err := env.Engine.LogRaidItem(env.Ctx, engine.RaidOptions{ProjectID: "proj-1", Kind: "risks", Title: "Vendor slip", Severity: ptrF(80)})
	if err != nil {
		t.Fatalf("log raid: %v", err)
	}
	if it.Kind != "risk" || it.Status != "open" {
		t.Fatalf("unexpected item %+v", it)
	}
	if it, err = env.Engine.SetRaidStatus(env.Ctx, it.ID, "mitigating", "tester"); err != nil || it.Status != "mitigating" {
		t.Fatalf("to mitigating: %v", err)
	}
	if it, err = env.Engine.SetRaidStatus(env.Ctx, it.ID, "closed", "tester"); err != nil || it.Status != "closed" {
		t.Fatalf("to closed: %v", err)
	}
	if _, err = env.Engine.SetRaidStatus(env.Ctx, it.ID, "mitigating", "tester"); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected invalid closed -> mitigating, got %v", err)
	}
	if it, err = env.Engine.SetRaidStatus(env.Ctx, it.ID, "open", "tester"); err != nil || it.Status != "open" {
		t.Fatalf("reopen: %v", err)
	}
}

func TestLogRaidItemOrgLevel(t *testing.T) {
	env := newTestEnv(t)
	it, err := env.Engine.LogRaidItem(env.Ctx, engine.RaidOptions{Kind: "dependency", Title: "Shared platform upgrade"})
	if err != nil {
		t.Fatalf("log raid: %v", err)
	}
	if it.ProjectID != nil {
		t.Fatalf("expected org-level item, got project %s", *it.ProjectID)
	}
	if _, err := env.Engine.LogRaidItem(env.Ctx, engine.RaidOptions{Kind: "task", Title: "nope"}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}

func TestMilestoneTransitions(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.AddMilestone(env.Ctx, engine.MilestoneOptions{ProjectID: "proj-1", Title: "Go live"}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected invalid without due date, got %v", err)
	}
	m, err := env.Engine.AddMilestone(env.Ctx, engine.MilestoneOptions{ProjectID: "proj-1", Title: "Go live", DueAt: fixedNow.Add(48 * time.Hour)})
	if err != nil {
		t.Fatalf("add milestone: %v", err)
	}
	if m, err = env.Engine.SetMilestoneStatus(env.Ctx, m.ID, "missed", "tester"); err != nil || m.Status != "missed" {
		t.Fatalf("to missed: %v", err)
	}
	if m, err = env.Engine.SetMilestoneStatus(env.Ctx, m.ID, "achieved", "tester"); err != nil || m.Status != "achieved" {
		t.Fatalf("to achieved: %v", err)
	}
	if _, err = env.Engine.SetMilestoneStatus(env.Ctx, m.ID, "planned", "tester"); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected invalid achieved -> planned, got %v", err)
	}
}

func TestWritesAppendEvents(t *testing.T) {
	env := newTestEnv(t)
	step, err := env.Engine.SubmitApproval(env.Ctx, engine.ApprovalOptions{ProjectID: "proj-1", Stage: "Gate 1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.DecideApproval(env.Ctx, step.ID, "rejected", "", "tester"); err != nil {
		t.Fatalf("decide: %v", err)
	}
	evs, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{ProjectID: "proj-1", Limit: 10})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var types []string
	for _, e := range evs {
		types = append(types, e.Type)
	}
	want := map[string]bool{"project.created": false, "approval.submitted": false, "approval.decided": false}
	for _, ty := range types {
		if _, ok := want[ty]; ok {
			want[ty] = true
		}
	}
	for ty, seen := range want {
		if !seen {
			t.Fatalf("missing %s event in %v", ty, types)
		}
	}
}

func TestSignalQueriesSeeWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.Ctx
	if _, err := env.Engine.SubmitApproval(ctx, engine.ApprovalOptions{ProjectID: "proj-1", Stage: "Gate 1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	it, err := env.Engine.LogRaidItem(ctx, engine.RaidOptions{ProjectID: "proj-1", Kind: "issue", Title: "Outage"})
	if err != nil {
		t.Fatalf("log raid: %v", err)
	}
	if _, err := env.Engine.SetRaidStatus(ctx, it.ID, "resolved", "tester"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := env.Engine.AddMilestone(ctx, engine.MilestoneOptions{ProjectID: "proj-1", Title: "Beta", DueAt: fixedNow.Add(-72 * time.Hour)}); err != nil {
		t.Fatalf("add milestone: %v", err)
	}

	all, err := env.Engine.Repo.ConsolidatedSignals(ctx, fixedNow)
	if err != nil {
		t.Fatalf("consolidated: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("view should include closed items, got %d rows", len(all))
	}
	raid, err := env.Engine.Repo.RaidSignals(ctx, fixedNow)
	if err != nil {
		t.Fatalf("raid signals: %v", err)
	}
	if len(raid) != 0 {
		t.Fatalf("resolved raid item should not be open, got %d", len(raid))
	}
	ms, err := env.Engine.Repo.MilestoneSignals(ctx, fixedNow)
	if err != nil {
		t.Fatalf("milestone signals: %v", err)
	}
	if len(ms) != 1 {
		t.Fatalf("expected one milestone, got %d", len(ms))
	}
	h, ok := ms[0]["hours_to_due"].(float64)
	if !ok || h != -72 {
		t.Fatalf("expected hours_to_due -72, got %v", ms[0]["hours_to_due"])
	}
}
