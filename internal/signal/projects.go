package signal

import (
	"sort"
	"time"
)

// ProjectInfo is catalog data supplied by the caller. It annotates rows but
// never changes counts or RAG.
type ProjectInfo struct {
	Title  string
	Code   string
	Status string
	Score  *float64
}

// AggregateOptions extends AggregateByProject with caller-supplied context.
type AggregateOptions struct {
	Catalog map[string]ProjectInfo
	// IncludeIdle adds a green row for every catalog project without records.
	IncludeIdle bool
	// Now and WindowDays drive the DueSoon count; zero values disable it.
	Now        time.Time
	WindowDays int
}

// AggregateByProject folds classified records into one row per project.
// Records without a project are excluded. Rows are ordered worst-first.
func AggregateByProject(records []Classified) []ProjectRow {
	return AggregateByProjectWith(records, AggregateOptions{})
}

type projectAcc struct {
	row    ProjectRow
	actors map[string]int
	stages map[string]int
}

// AggregateByProjectWith is AggregateByProject with catalog annotation and a
// due-soon window.
func AggregateByProjectWith(records []Classified, opts AggregateOptions) []ProjectRow {
	groups := map[string]*projectAcc{}
	var order []string
	get := func(id string) *projectAcc {
		acc, ok := groups[id]
		if !ok {
			acc = &projectAcc{
				row:    ProjectRow{ProjectID: id},
				actors: map[string]int{},
				stages: map[string]int{},
			}
			groups[id] = acc
			order = append(order, id)
		}
		return acc
	}

	var windowEnd time.Time
	dueSoon := opts.WindowDays > 0 && !opts.Now.IsZero()
	if dueSoon {
		windowEnd = opts.Now.Add(time.Duration(opts.WindowDays) * 24 * time.Hour)
	}

	for _, r := range records {
		if r.ProjectID == "" {
			continue
		}
		acc := get(r.ProjectID)
		acc.row.Counts = acc.row.Counts.add(r.Urgency)
		if r.AgeDays > acc.row.MaxAgeDays {
			acc.row.MaxAgeDays = r.AgeDays
		}
		if acc.row.Title == "" && r.ProjectTitle != "" {
			acc.row.Title = r.ProjectTitle
		}
		if acc.row.Code == "" && r.ProjectCode != "" {
			acc.row.Code = r.ProjectCode
		}
		if isNamedActor(r.ActorLabel) {
			acc.actors[r.ActorLabel]++
		}
		if r.Stage != "" {
			acc.stages[r.Stage]++
		}
		if dueSoon && r.DueAt != nil && !r.DueAt.Before(opts.Now) && !r.DueAt.After(windowEnd) {
			acc.row.DueSoon++
		}
	}

	if opts.IncludeIdle {
		ids := make([]string, 0, len(opts.Catalog))
		for id := range opts.Catalog {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			get(id)
		}
	}

	rows := make([]ProjectRow, 0, len(order))
	for _, id := range order {
		acc := groups[id]
		row := acc.row
		if info, ok := opts.Catalog[id]; ok {
			if info.Title != "" {
				row.Title = info.Title
			}
			if info.Code != "" {
				row.Code = info.Code
			}
			if info.Score != nil {
				score := *info.Score
				row.Score = &score
			}
		}
		if row.Title == "" {
			row.Title = row.ProjectID
		}
		row.RAG = row.Counts.RAG()
		row.DominantActor = dominant(acc.actors)
		row.DominantStage = dominant(acc.stages)
		rows = append(rows, row)
	}
	SortProjects(rows)
	return rows
}

// SortProjects orders rows by RAG rank, then oldest pending age, then
// project id.
func SortProjects(rows []ProjectRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.RAG.Rank() != b.RAG.Rank() {
			return a.RAG.Rank() > b.RAG.Rank()
		}
		if a.MaxAgeDays != b.MaxAgeDays {
			return a.MaxAgeDays > b.MaxAgeDays
		}
		return a.ProjectID < b.ProjectID
	})
}

// dominant returns the most frequent key, ties broken alphabetically.
func dominant(counts map[string]int) string {
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

func isNamedActor(label string) bool {
	return label != "" && label != UnknownActor && label != UnknownUser
}
