package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"govpulse/internal/db"
	"govpulse/internal/domain"
	"govpulse/internal/events"
	"govpulse/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn, Dialect: dialect}
}

func inTx(t *testing.T, r Repo, fn func(ctx context.Context, tx *sql.Tx) error) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := fn(ctx, tx); err != nil {
		t.Fatalf("tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestProjectsFilterAndConflict(t *testing.T) {
	r := newTestRepo(t)
	now := "2024-01-01T00:00:00Z"
	inTx(t, r, func(ctx context.Context, tx *sql.Tx) error {
		for _, p := range []domain.Project{
			{ID: "p1", Code: "A", Title: "Alpha", Status: "active", CreatedAt: now, UpdatedAt: now},
			{ID: "p2", Title: "Beta", Status: "closed", CreatedAt: now, UpdatedAt: now},
			{ID: "p3", Title: "Gamma", Status: "archived", CreatedAt: now, UpdatedAt: now},
		} {
			if err := r.InsertProjectTx(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
	ctx := context.Background()

	got, err := r.ListProjects(ctx, ProjectFilters{Exclude: []string{"closed", "archived"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("expected only p1, got %+v", got)
	}

	byCode, err := r.GetProject(ctx, "A")
	if err != nil || byCode.ID != "p1" {
		t.Fatalf("lookup by code: %+v %v", byCode, err)
	}
	if _, err := r.GetProject(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	err = r.InsertProjectTx(ctx, tx, domain.Project{ID: "p1", Title: "Dup", Status: "active", CreatedAt: now, UpdatedAt: now})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestActorLookupByEmail(t *testing.T) {
	r := newTestRepo(t)
	inTx(t, r, func(ctx context.Context, tx *sql.Tx) error {
		return r.InsertActorTx(ctx, tx, domain.Actor{ID: "a1", Email: "dana@example.com", CreatedAt: "2024-01-01T00:00:00Z"})
	})
	a, err := r.GetActor(context.Background(), "dana@example.com")
	if err != nil || a.ID != "a1" || a.DisplayName != "" {
		t.Fatalf("unexpected actor %+v %v", a, err)
	}
}

func TestEventPaging(t *testing.T) {
	r := newTestRepo(t)
	w := events.Writer{Dialect: r.Dialect, Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }}
	inTx(t, r, func(ctx context.Context, tx *sql.Tx) error {
		for i, project := range []string{"p1", "p2", "p1", "p1", ""} {
			if err := w.Append(ctx, tx, events.RaidLogged, project, "raid", "r"+string(rune('0'+i)), "local-user", nil); err != nil {
				return err
			}
		}
		return nil
	})
	ctx := context.Background()

	latest, err := r.LatestEvents(ctx, EventFilters{ProjectID: "p1", Limit: 2})
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 2 || latest[0].ID != 4 || latest[1].ID != 3 {
		t.Fatalf("expected events 4,3 got %+v", latest)
	}
	older, err := r.LatestEvents(ctx, EventFilters{ProjectID: "p1", Before: latest[1].ID})
	if err != nil || len(older) != 1 || older[0].ID != 1 {
		t.Fatalf("expected event 1 before cursor, got %+v %v", older, err)
	}

	after, err := r.EventsAfter(ctx, 10, 2, "")
	if err != nil {
		t.Fatalf("after: %v", err)
	}
	if len(after) != 3 || after[0].ID != 3 || after[2].ProjectID != "" {
		t.Fatalf("expected events 3..5 ascending, got %+v", after)
	}
}
