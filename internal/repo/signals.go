package repo

import (
	"context"
	"database/sql"
	"time"
)

// SignalRow is one loosely shaped record handed to the signal normalizer.
type SignalRow = map[string]any

// The per-table queries mirror the branches of the governance_signals view
// so that each can stand in for it when the view is unavailable.
const (
	approvalSignalsSQL = `SELECT 'approval' AS kind, s.id, s.project_id,
	p.title AS project_title, p.code AS project_code, p.status AS project_status,
	s.stage, s.status, s.sla_status, s.submitted_at, s.due_at,
	a.display_name AS owner_name, a.email AS owner_email, s.approver_id AS owner_id
FROM approval_steps s
JOIN projects p ON p.id = s.project_id
LEFT JOIN actors a ON a.id = s.approver_id
WHERE s.status = 'pending'
ORDER BY s.submitted_at, s.id`

	raidSignalsSQL = `SELECT r.kind, r.id, r.project_id,
	p.title AS project_title, p.code AS project_code, p.status AS project_status,
	r.status, r.severity, r.created_at AS submitted_at, r.due_at,
	a.display_name AS owner_name, a.email AS owner_email, r.owner_id
FROM raid_items r
LEFT JOIN projects p ON p.id = r.project_id
LEFT JOIN actors a ON a.id = r.owner_id
WHERE r.status NOT IN ('closed','resolved')
ORDER BY r.created_at, r.id`

	milestoneSignalsSQL = `SELECT 'milestone' AS kind, m.id, m.project_id,
	p.title AS project_title, p.code AS project_code, p.status AS project_status,
	m.title AS stage, m.status, m.due_at,
	a.display_name AS owner_name, a.email AS owner_email, m.owner_id
FROM milestones m
JOIN projects p ON p.id = m.project_id
LEFT JOIN actors a ON a.id = m.owner_id
WHERE m.status IN ('planned','missed')
ORDER BY m.due_at, m.id`

	consolidatedSignalsSQL = `SELECT * FROM governance_signals ORDER BY kind, id`
)

// ConsolidatedSignals reads every item through the governance_signals view,
// closed items included.
func (r Repo) ConsolidatedSignals(ctx context.Context, now time.Time) ([]SignalRow, error) {
	return r.signalRows(ctx, now, consolidatedSignalsSQL)
}

// ApprovalSignals reads pending approval steps.
func (r Repo) ApprovalSignals(ctx context.Context, now time.Time) ([]SignalRow, error) {
	return r.signalRows(ctx, now, approvalSignalsSQL)
}

// RaidSignals reads open RAID items.
func (r Repo) RaidSignals(ctx context.Context, now time.Time) ([]SignalRow, error) {
	return r.signalRows(ctx, now, raidSignalsSQL)
}

// MilestoneSignals reads milestones that are still outstanding.
func (r Repo) MilestoneSignals(ctx context.Context, now time.Time) ([]SignalRow, error) {
	return r.signalRows(ctx, now, milestoneSignalsSQL)
}

func (r Repo) signalRows(ctx context.Context, now time.Time, query string) ([]SignalRow, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res, err := scanMaps(rows)
	if err != nil {
		return nil, err
	}
	for _, row := range res {
		withHoursToDue(row, now)
	}
	return res, nil
}

// withHoursToDue supplies the hours_to_due figure for rows that only carry a
// due date, so an undated milestone can still age once it is past due.
func withHoursToDue(row SignalRow, now time.Time) {
	if _, ok := row["hours_to_due"]; ok {
		return
	}
	s, ok := row["due_at"].(string)
	if !ok || s == "" {
		return
	}
	due, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return
	}
	row["hours_to_due"] = due.Sub(now).Hours()
}

func scanMaps(rows *sql.Rows) ([]SignalRow, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := []SignalRow{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(SignalRow, len(cols))
		for i, c := range cols {
			switch v := vals[i].(type) {
			case nil:
				continue
			case []byte:
				row[c] = string(v)
			case time.Time:
				row[c] = v.UTC().Format(time.RFC3339)
			default:
				row[c] = v
			}
		}
		res = append(res, row)
	}
	return res, rows.Err()
}
