package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"govpulse/internal/db"
	"govpulse/internal/domain"
)

type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

const pgDuplicateKeyCode = "23505"

// mapError translates driver errors to repo errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateKeyCode {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (r Repo) q(query string) string {
	return r.Dialect.Rebind(query)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) on(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

const projectColumns = `id,COALESCE(code,''),title,status,health_score,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var score sql.NullFloat64
	if err := row.Scan(&p.ID, &p.Code, &p.Title, &p.Status, &score, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, mapError(err)
	}
	if score.Valid {
		v := score.Float64
		p.HealthScore = &v
	}
	return p, nil
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.on(tx).ExecContext(ctx, r.q(`INSERT INTO projects(id,code,title,status,health_score,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`),
		p.ID, nullable(p.Code), p.Title, p.Status, nullableFloatPtr(p.HealthScore), p.CreatedAt, p.UpdatedAt)
	return mapError(err)
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return r.GetProjectTx(ctx, nil, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(r.on(tx).QueryRowContext(ctx, r.q(`SELECT `+projectColumns+` FROM projects WHERE id=? OR code=?`), id, id))
}

type ProjectFilters struct {
	Status  string
	Exclude []string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if len(f.Exclude) > 0 {
		clauses = append(clauses, "status NOT IN ("+placeholders(len(f.Exclude))+")")
		for _, s := range f.Exclude {
			args = append(args, s)
		}
	}
	query := `SELECT ` + projectColumns + ` FROM projects WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ProjectUpdate carries the optional fields of UpdateProjectTx.
type ProjectUpdate struct {
	Title       *string
	Status      *string
	HealthScore *float64
	ClearScore  bool
}

func (u ProjectUpdate) Empty() bool {
	return u.Title == nil && u.Status == nil && u.HealthScore == nil && !u.ClearScore
}

func (r Repo) UpdateProjectTx(ctx context.Context, tx *sql.Tx, id string, u ProjectUpdate, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *u.Status)
	}
	switch {
	case u.ClearScore:
		fields = append(fields, "health_score=NULL")
	case u.HealthScore != nil:
		fields = append(fields, "health_score=?")
		args = append(args, *u.HealthScore)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.on(tx).ExecContext(ctx, r.q(fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ","))), args...)
	if err != nil {
		return mapError(err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertActorTx(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	_, err := r.on(tx).ExecContext(ctx, r.q(`INSERT INTO actors(id,display_name,email,created_at) VALUES (?,?,?,?)`),
		a.ID, nullable(a.DisplayName), nullable(a.Email), a.CreatedAt)
	return mapError(err)
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	return r.GetActorTx(ctx, nil, id)
}

// GetActorTx looks an actor up by id or email.
func (r Repo) GetActorTx(ctx context.Context, tx *sql.Tx, id string) (domain.Actor, error) {
	var a domain.Actor
	err := r.on(tx).QueryRowContext(ctx, r.q(`SELECT id,COALESCE(display_name,''),COALESCE(email,''),created_at FROM actors WHERE id=? OR email=?`), id, id).
		Scan(&a.ID, &a.DisplayName, &a.Email, &a.CreatedAt)
	return a, mapError(err)
}

func (r Repo) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,COALESCE(display_name,''),COALESCE(email,''),created_at FROM actors ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		var a domain.Actor
		if err := rows.Scan(&a.ID, &a.DisplayName, &a.Email, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}
