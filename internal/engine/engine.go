package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"govpulse/internal/config"
	"govpulse/internal/db"
	"govpulse/internal/domain"
	"govpulse/internal/events"
	"govpulse/internal/repo"
	"govpulse/internal/signal"
)

// ErrInvalid marks input the engine refuses before touching the store.
var ErrInvalid = errors.New("invalid input")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(conn *sql.DB, dialect db.Dialect, cfg *config.Config) Engine {
	return Engine{
		DB:     conn,
		Repo:   repo.Repo{DB: conn, Dialect: dialect},
		Events: events.Writer{Dialect: dialect},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// withTx runs fn in a transaction and commits when it returns nil.
func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func actorOrLocal(actorID string) string {
	if actorID == "" {
		return "local-user"
	}
	return actorID
}

var projectStatuses = map[string]bool{"active": true, "paused": true, "closed": true, "archived": true}

func validScore(score *float64) error {
	if score != nil && (*score < 0 || *score > 100) {
		return invalidf("health score must be between 0 and 100")
	}
	return nil
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID          string
	Code        string
	Title       string
	Status      string
	HealthScore *float64
	ActorID     string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		return domain.Project{}, invalidf("title is required")
	}
	if opts.Status == "" {
		opts.Status = "active"
	}
	if !projectStatuses[opts.Status] {
		return domain.Project{}, invalidf("unknown project status %q", opts.Status)
	}
	if err := validScore(opts.HealthScore); err != nil {
		return domain.Project{}, err
	}
	now := e.stamp()
	p := domain.Project{
		ID:          opts.ID,
		Code:        strings.TrimSpace(opts.Code),
		Title:       opts.Title,
		Status:      opts.Status,
		HealthScore: opts.HealthScore,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		return e.Events.Append(ctx, tx, events.ProjectCreated, p.ID, "project", p.ID, actorOrLocal(opts.ActorID),
			events.EventPayload{"status": p.Status, "title": p.Title})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) UpdateProject(ctx context.Context, id string, u repo.ProjectUpdate, actorID string) (domain.Project, error) {
	if u.Empty() {
		return domain.Project{}, invalidf("nothing to update")
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return domain.Project{}, invalidf("title must not be empty")
	}
	if u.Status != nil && !projectStatuses[*u.Status] {
		return domain.Project{}, invalidf("unknown project status %q", *u.Status)
	}
	if err := validScore(u.HealthScore); err != nil {
		return domain.Project{}, err
	}
	var p domain.Project
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		current, err := e.Repo.GetProjectTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := e.Repo.UpdateProjectTx(ctx, tx, current.ID, u, e.stamp()); err != nil {
			return err
		}
		payload := events.EventPayload{}
		if u.Status != nil {
			payload["status"] = *u.Status
			payload["previous_status"] = current.Status
		}
		if u.HealthScore != nil {
			payload["health_score"] = *u.HealthScore
		}
		if u.ClearScore {
			payload["health_score"] = nil
		}
		if u.Title != nil {
			payload["title"] = *u.Title
		}
		if err := e.Events.Append(ctx, tx, events.ProjectUpdated, current.ID, "project", current.ID, actorOrLocal(actorID), payload); err != nil {
			return err
		}
		p, err = e.Repo.GetProjectTx(ctx, tx, current.ID)
		return err
	})
	return p, err
}

func (e Engine) AddActor(ctx context.Context, a domain.Actor, actorID string) (domain.Actor, error) {
	a.DisplayName = strings.TrimSpace(a.DisplayName)
	a.Email = strings.TrimSpace(a.Email)
	if a.DisplayName == "" && a.Email == "" && a.ID == "" {
		return a, invalidf("actor needs an id, a display name or an email")
	}
	if a.Email != "" && !strings.Contains(a.Email, "@") {
		return a, invalidf("email %q is not an address", a.Email)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = e.stamp()
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertActorTx(ctx, tx, a); err != nil {
			return fmt.Errorf("insert actor: %w", err)
		}
		return e.Events.Append(ctx, tx, events.ActorAdded, "", "actor", a.ID, actorOrLocal(actorID), nil)
	})
	return a, err
}

// resolveActorTx maps an actor id or email to its id. An empty ref stays
// empty.
func (e Engine) resolveActorTx(ctx context.Context, tx *sql.Tx, ref string) (*string, error) {
	if ref == "" {
		return nil, nil
	}
	a, err := e.Repo.GetActorTx(ctx, tx, ref)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("actor %s: %w", ref, repo.ErrNotFound)
		}
		return nil, err
	}
	return &a.ID, nil
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// ApprovalOptions are parameters for submitting an approval step.
type ApprovalOptions struct {
	ID          string
	ProjectID   string
	Stage       string
	Approver    string
	SLAStatus   string
	SubmittedAt *time.Time
	DueAt       *time.Time
	ActorID     string
}

func (e Engine) SubmitApproval(ctx context.Context, opts ApprovalOptions) (domain.ApprovalStep, error) {
	if opts.ProjectID == "" {
		return domain.ApprovalStep{}, invalidf("project is required")
	}
	if strings.TrimSpace(opts.Stage) == "" {
		return domain.ApprovalStep{}, invalidf("stage is required")
	}
	submitted := e.now()
	if opts.SubmittedAt != nil {
		submitted = *opts.SubmittedAt
	}
	if opts.DueAt != nil && opts.DueAt.Before(submitted) {
		return domain.ApprovalStep{}, invalidf("due date precedes submission")
	}
	s := domain.ApprovalStep{
		ID:          opts.ID,
		Stage:       strings.TrimSpace(opts.Stage),
		Status:      "pending",
		SLAStatus:   strings.ToLower(strings.TrimSpace(opts.SLAStatus)),
		SubmittedAt: submitted.UTC().Format(time.RFC3339),
		DueAt:       formatOptional(opts.DueAt),
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		p, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID)
		if err != nil {
			return fmt.Errorf("project %s: %w", opts.ProjectID, err)
		}
		s.ProjectID = p.ID
		if s.ApproverID, err = e.resolveActorTx(ctx, tx, opts.Approver); err != nil {
			return err
		}
		if err := e.Repo.InsertApprovalTx(ctx, tx, s); err != nil {
			return fmt.Errorf("insert approval: %w", err)
		}
		return e.Events.Append(ctx, tx, events.ApprovalSubmitted, s.ProjectID, "approval", s.ID, actorOrLocal(opts.ActorID),
			events.EventPayload{"stage": s.Stage})
	})
	return s, err
}

var decisions = map[string]bool{"approved": true, "rejected": true, "withdrawn": true}

// DecideApproval closes a pending approval step.
func (e Engine) DecideApproval(ctx context.Context, id, decision, note, actorID string) (domain.ApprovalStep, error) {
	decision = strings.ToLower(strings.TrimSpace(decision))
	if !decisions[decision] {
		return domain.ApprovalStep{}, invalidf("decision must be approved, rejected or withdrawn")
	}
	var s domain.ApprovalStep
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		current, err := e.Repo.GetApprovalTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != "pending" {
			return invalidf("approval %s already %s", id, current.Status)
		}
		if err := e.Repo.DecideApprovalTx(ctx, tx, id, decision, note, e.stamp()); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, events.ApprovalDecided, current.ProjectID, "approval", id, actorOrLocal(actorID),
			events.EventPayload{"decision": decision}); err != nil {
			return err
		}
		s, err = e.Repo.GetApprovalTx(ctx, tx, id)
		return err
	})
	return s, err
}

var raidKinds = map[signal.Kind]bool{
	signal.KindRisk: true, signal.KindAssumption: true, signal.KindIssue: true,
	signal.KindDependency: true, signal.KindChange: true,
}

// RaidOptions are parameters for logging a RAID item. ProjectID may be empty
// for org-level items.
type RaidOptions struct {
	ID        string
	ProjectID string
	Kind      string
	Title     string
	Owner     string
	Severity  *float64
	DueAt     *time.Time
	ActorID   string
}

func (e Engine) LogRaidItem(ctx context.Context, opts RaidOptions) (domain.RaidItem, error) {
	kind := signal.ParseKind(opts.Kind)
	if !raidKinds[kind] {
		return domain.RaidItem{}, invalidf("raid kind must be risk, assumption, issue, dependency or change")
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.RaidItem{}, invalidf("title is required")
	}
	if err := validScore(opts.Severity); err != nil {
		return domain.RaidItem{}, invalidf("severity must be between 0 and 100")
	}
	now := e.stamp()
	it := domain.RaidItem{
		ID:        opts.ID,
		Kind:      string(kind),
		Title:     strings.TrimSpace(opts.Title),
		Severity:  opts.Severity,
		Status:    "open",
		CreatedAt: now,
		UpdatedAt: now,
		DueAt:     formatOptional(opts.DueAt),
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if opts.ProjectID != "" {
			p, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID)
			if err != nil {
				return fmt.Errorf("project %s: %w", opts.ProjectID, err)
			}
			it.ProjectID = &p.ID
		}
		var err error
		if it.OwnerID, err = e.resolveActorTx(ctx, tx, opts.Owner); err != nil {
			return err
		}
		if err := e.Repo.InsertRaidTx(ctx, tx, it); err != nil {
			return fmt.Errorf("insert raid item: %w", err)
		}
		projectID := ""
		if it.ProjectID != nil {
			projectID = *it.ProjectID
		}
		return e.Events.Append(ctx, tx, events.RaidLogged, projectID, it.Kind, it.ID, actorOrLocal(opts.ActorID),
			events.EventPayload{"title": it.Title})
	})
	return it, err
}

func ensureRaidTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case "open":
		if newStatus == "mitigating" || newStatus == "closed" || newStatus == "resolved" {
			return nil
		}
	case "mitigating":
		if newStatus == "open" || newStatus == "closed" || newStatus == "resolved" {
			return nil
		}
	case "closed", "resolved":
		if newStatus == "open" {
			return nil
		}
	}
	return invalidf("invalid raid status transition %s -> %s", oldStatus, newStatus)
}

func (e Engine) SetRaidStatus(ctx context.Context, id, status, actorID string) (domain.RaidItem, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	var it domain.RaidItem
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		current, err := e.Repo.GetRaidTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := ensureRaidTransition(current.Status, status); err != nil {
			return err
		}
		if err := e.Repo.SetRaidStatusTx(ctx, tx, id, status, e.stamp()); err != nil {
			return err
		}
		projectID := ""
		if current.ProjectID != nil {
			projectID = *current.ProjectID
		}
		if err := e.Events.Append(ctx, tx, events.RaidUpdated, projectID, current.Kind, id, actorOrLocal(actorID),
			events.EventPayload{"status": status, "previous_status": current.Status}); err != nil {
			return err
		}
		it, err = e.Repo.GetRaidTx(ctx, tx, id)
		return err
	})
	return it, err
}

// MilestoneOptions are parameters for adding a milestone.
type MilestoneOptions struct {
	ID        string
	ProjectID string
	Title     string
	Owner     string
	DueAt     time.Time
	ActorID   string
}

func (e Engine) AddMilestone(ctx context.Context, opts MilestoneOptions) (domain.Milestone, error) {
	if opts.ProjectID == "" {
		return domain.Milestone{}, invalidf("project is required")
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Milestone{}, invalidf("title is required")
	}
	if opts.DueAt.IsZero() {
		return domain.Milestone{}, invalidf("due date is required")
	}
	m := domain.Milestone{
		ID:        opts.ID,
		Title:     strings.TrimSpace(opts.Title),
		Status:    "planned",
		DueAt:     opts.DueAt.UTC().Format(time.RFC3339),
		CreatedAt: e.stamp(),
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		p, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID)
		if err != nil {
			return fmt.Errorf("project %s: %w", opts.ProjectID, err)
		}
		m.ProjectID = p.ID
		if m.OwnerID, err = e.resolveActorTx(ctx, tx, opts.Owner); err != nil {
			return err
		}
		if err := e.Repo.InsertMilestoneTx(ctx, tx, m); err != nil {
			return fmt.Errorf("insert milestone: %w", err)
		}
		return e.Events.Append(ctx, tx, events.MilestoneAdded, m.ProjectID, "milestone", m.ID, actorOrLocal(opts.ActorID),
			events.EventPayload{"title": m.Title, "due_at": m.DueAt})
	})
	return m, err
}

func ensureMilestoneTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case "planned":
		if newStatus == "achieved" || newStatus == "missed" || newStatus == "cancelled" {
			return nil
		}
	case "missed":
		if newStatus == "achieved" || newStatus == "cancelled" {
			return nil
		}
	}
	return invalidf("invalid milestone status transition %s -> %s", oldStatus, newStatus)
}

func (e Engine) SetMilestoneStatus(ctx context.Context, id, status, actorID string) (domain.Milestone, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	var m domain.Milestone
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		current, err := e.Repo.GetMilestoneTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := ensureMilestoneTransition(current.Status, status); err != nil {
			return err
		}
		if err := e.Repo.SetMilestoneStatusTx(ctx, tx, id, status); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, events.MilestoneUpdated, current.ProjectID, "milestone", id, actorOrLocal(actorID),
			events.EventPayload{"status": status, "previous_status": current.Status}); err != nil {
			return err
		}
		m, err = e.Repo.GetMilestoneTx(ctx, tx, id)
		return err
	})
	return m, err
}
