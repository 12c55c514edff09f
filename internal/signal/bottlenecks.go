package signal

import (
	"math"
	"sort"
)

// RankBottlenecks folds classified records into one row per named actor.
// Records whose owner could not be resolved are excluded. Rows are ordered by
// pending count, then maximum wait, then label; Heat is assigned afterwards
// and plays no part in the ordering.
func RankBottlenecks(records []Classified) []BottleneckRow {
	type actorAcc struct {
		pending  int
		totalAge int
		maxAge   int
		projects map[string]struct{}
	}
	groups := map[string]*actorAcc{}
	for _, r := range records {
		if !isNamedActor(r.ActorLabel) {
			continue
		}
		acc, ok := groups[r.ActorLabel]
		if !ok {
			acc = &actorAcc{projects: map[string]struct{}{}}
			groups[r.ActorLabel] = acc
		}
		acc.pending++
		acc.totalAge += r.AgeDays
		if r.AgeDays > acc.maxAge {
			acc.maxAge = r.AgeDays
		}
		if r.ProjectID != "" {
			acc.projects[r.ProjectID] = struct{}{}
		}
	}

	rows := make([]BottleneckRow, 0, len(groups))
	for label, acc := range groups {
		rows = append(rows, BottleneckRow{
			ActorLabel:       label,
			PendingCount:     acc.pending,
			ProjectsAffected: len(acc.projects),
			AvgWaitDays:      round1(float64(acc.totalAge) / float64(acc.pending)),
			MaxWaitDays:      acc.maxAge,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.PendingCount != b.PendingCount {
			return a.PendingCount > b.PendingCount
		}
		if a.MaxWaitDays != b.MaxWaitDays {
			return a.MaxWaitDays > b.MaxWaitDays
		}
		return a.ActorLabel < b.ActorLabel
	})
	for i := range rows {
		rows[i].Heat = HeatFor(rows[i].MaxWaitDays)
	}
	return rows
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
