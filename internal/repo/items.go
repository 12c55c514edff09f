package repo

import (
	"context"
	"database/sql"
	"strings"

	"govpulse/internal/domain"
)

const approvalColumns = `id,project_id,stage,approver_id,status,sla_status,decision_note,submitted_at,due_at,decided_at`

func scanApproval(row rowScanner) (domain.ApprovalStep, error) {
	var s domain.ApprovalStep
	var approver, sla, note, due, decided sql.NullString
	if err := row.Scan(&s.ID, &s.ProjectID, &s.Stage, &approver, &s.Status, &sla, &note, &s.SubmittedAt, &due, &decided); err != nil {
		return s, mapError(err)
	}
	s.ApproverID = stringPtr(approver)
	s.SLAStatus = sla.String
	s.DecisionNote = note.String
	s.DueAt = stringPtr(due)
	s.DecidedAt = stringPtr(decided)
	return s, nil
}

func (r Repo) InsertApprovalTx(ctx context.Context, tx *sql.Tx, s domain.ApprovalStep) error {
	_, err := r.on(tx).ExecContext(ctx, r.q(`INSERT INTO approval_steps(`+approvalColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`),
		s.ID, s.ProjectID, s.Stage, nullableStringPtr(s.ApproverID), s.Status, nullable(s.SLAStatus), nullable(s.DecisionNote),
		s.SubmittedAt, nullableStringPtr(s.DueAt), nullableStringPtr(s.DecidedAt))
	return mapError(err)
}

func (r Repo) GetApprovalTx(ctx context.Context, tx *sql.Tx, id string) (domain.ApprovalStep, error) {
	return scanApproval(r.on(tx).QueryRowContext(ctx, r.q(`SELECT `+approvalColumns+` FROM approval_steps WHERE id=?`), id))
}

func (r Repo) DecideApprovalTx(ctx context.Context, tx *sql.Tx, id, status, note, decidedAt string) error {
	res, err := r.on(tx).ExecContext(ctx, r.q(`UPDATE approval_steps SET status=?, decision_note=?, decided_at=? WHERE id=?`),
		status, nullable(note), decidedAt, id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type ApprovalFilters struct {
	ProjectID string
	Status    string
}

func (r Repo) ListApprovals(ctx context.Context, f ApprovalFilters) ([]domain.ApprovalStep, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+approvalColumns+` FROM approval_steps WHERE `+strings.Join(clauses, " AND ")+` ORDER BY submitted_at, id`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ApprovalStep
	for rows.Next() {
		s, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

const raidColumns = `id,project_id,kind,title,owner_id,severity,status,created_at,updated_at,due_at`

func scanRaid(row rowScanner) (domain.RaidItem, error) {
	var it domain.RaidItem
	var project, owner, due sql.NullString
	var severity sql.NullFloat64
	if err := row.Scan(&it.ID, &project, &it.Kind, &it.Title, &owner, &severity, &it.Status, &it.CreatedAt, &it.UpdatedAt, &due); err != nil {
		return it, mapError(err)
	}
	it.ProjectID = stringPtr(project)
	it.OwnerID = stringPtr(owner)
	it.Severity = floatPtr(severity)
	it.DueAt = stringPtr(due)
	return it, nil
}

func (r Repo) InsertRaidTx(ctx context.Context, tx *sql.Tx, it domain.RaidItem) error {
	_, err := r.on(tx).ExecContext(ctx, r.q(`INSERT INTO raid_items(`+raidColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`),
		it.ID, nullableStringPtr(it.ProjectID), it.Kind, it.Title, nullableStringPtr(it.OwnerID), nullableFloatPtr(it.Severity),
		it.Status, it.CreatedAt, it.UpdatedAt, nullableStringPtr(it.DueAt))
	return mapError(err)
}

func (r Repo) GetRaidTx(ctx context.Context, tx *sql.Tx, id string) (domain.RaidItem, error) {
	return scanRaid(r.on(tx).QueryRowContext(ctx, r.q(`SELECT `+raidColumns+` FROM raid_items WHERE id=?`), id))
}

func (r Repo) SetRaidStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := r.on(tx).ExecContext(ctx, r.q(`UPDATE raid_items SET status=?, updated_at=? WHERE id=?`), status, updatedAt, id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const milestoneColumns = `id,project_id,title,owner_id,status,due_at,created_at`

func (r Repo) InsertMilestoneTx(ctx context.Context, tx *sql.Tx, m domain.Milestone) error {
	_, err := r.on(tx).ExecContext(ctx, r.q(`INSERT INTO milestones(`+milestoneColumns+`) VALUES (?,?,?,?,?,?,?)`),
		m.ID, m.ProjectID, m.Title, nullableStringPtr(m.OwnerID), m.Status, m.DueAt, m.CreatedAt)
	return mapError(err)
}

func (r Repo) GetMilestoneTx(ctx context.Context, tx *sql.Tx, id string) (domain.Milestone, error) {
	var m domain.Milestone
	var owner sql.NullString
	err := r.on(tx).QueryRowContext(ctx, r.q(`SELECT `+milestoneColumns+` FROM milestones WHERE id=?`), id).
		Scan(&m.ID, &m.ProjectID, &m.Title, &owner, &m.Status, &m.DueAt, &m.CreatedAt)
	m.OwnerID = stringPtr(owner)
	return m, mapError(err)
}

func (r Repo) SetMilestoneStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := r.on(tx).ExecContext(ctx, r.q(`UPDATE milestones SET status=? WHERE id=?`), status, id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
