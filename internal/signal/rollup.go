package signal

import (
	"fmt"
	"strings"
)

// PortfolioRollup is the org-level fold of project rows.
type PortfolioRollup struct {
	ProjectCount        int              `json:"project_count"`
	ScoredProjectCount  int              `json:"scored_project_count"`
	ScoreAverage        float64          `json:"score_average"`
	BreachedTotal       int              `json:"breached_total"`
	AtRiskTotal         int              `json:"at_risk_total"`
	BlockedProjectCount int              `json:"blocked_project_count"`
	DueSoonTotal        int              `json:"due_soon_total"`
	Prior               *PortfolioRollup `json:"prior_snapshot,omitempty"`
	Deltas              *Deltas          `json:"deltas,omitempty"`
}

// Direction is the narrative arrow for a delta.
type Direction string

const (
	Up   Direction = "↑"
	Down Direction = "↓"
	Flat Direction = "→"
)

// Delta is a signed difference against the prior snapshot.
type Delta struct {
	Value     float64   `json:"value"`
	Direction Direction `json:"direction"`
}

func newDelta(current, prior float64) Delta {
	v := round1(current - prior)
	d := Flat
	switch {
	case v > 0:
		d = Up
	case v < 0:
		d = Down
	}
	return Delta{Value: v, Direction: d}
}

// Deltas holds one Delta per rollup metric.
type Deltas struct {
	ProjectCount        Delta `json:"project_count"`
	ScoreAverage        Delta `json:"score_average"`
	BreachedTotal       Delta `json:"breached_total"`
	AtRiskTotal         Delta `json:"at_risk_total"`
	BlockedProjectCount Delta `json:"blocked_project_count"`
	DueSoonTotal        Delta `json:"due_soon_total"`
}

// Rollup folds project rows into portfolio aggregates. Score is an external
// input carried on the rows; RAG is derived here. The two may disagree and
// are reported side by side. When prior is non-nil, deltas are computed
// against it; prior's own history is dropped.
func Rollup(rows []ProjectRow, prior *PortfolioRollup) PortfolioRollup {
	var out PortfolioRollup
	var scoreSum float64
	for _, row := range rows {
		out.ProjectCount++
		out.BreachedTotal += row.Counts.Breached
		out.AtRiskTotal += row.Counts.AtRisk
		out.DueSoonTotal += row.DueSoon
		if row.RAG == RAGRed {
			out.BlockedProjectCount++
		}
		if row.Score != nil {
			out.ScoredProjectCount++
			scoreSum += *row.Score
		}
	}
	if out.ScoredProjectCount > 0 {
		out.ScoreAverage = round1(scoreSum / float64(out.ScoredProjectCount))
	}
	if prior != nil {
		p := *prior
		p.Prior, p.Deltas = nil, nil
		out.Prior = &p
		out.Deltas = &Deltas{
			ProjectCount:        newDelta(float64(out.ProjectCount), float64(p.ProjectCount)),
			ScoreAverage:        newDelta(out.ScoreAverage, p.ScoreAverage),
			BreachedTotal:       newDelta(float64(out.BreachedTotal), float64(p.BreachedTotal)),
			AtRiskTotal:         newDelta(float64(out.AtRiskTotal), float64(p.AtRiskTotal)),
			BlockedProjectCount: newDelta(float64(out.BlockedProjectCount), float64(p.BlockedProjectCount)),
			DueSoonTotal:        newDelta(float64(out.DueSoonTotal), float64(p.DueSoonTotal)),
		}
	}
	return out
}

// Narrative renders short directional sentences for advisor text. It never
// influences ordering.
func (p PortfolioRollup) Narrative() []string {
	lines := []string{
		fmt.Sprintf("%d projects tracked, %d blocked (red).", p.ProjectCount, p.BlockedProjectCount),
		fmt.Sprintf("%d items breached SLA, %d at risk, %d due soon.", p.BreachedTotal, p.AtRiskTotal, p.DueSoonTotal),
	}
	if p.ScoredProjectCount > 0 {
		lines = append(lines, fmt.Sprintf("Average health score %.1f across %d scored projects.", p.ScoreAverage, p.ScoredProjectCount))
	}
	if p.Deltas == nil {
		return lines
	}
	d := p.Deltas
	var changes []string
	add := func(label string, delta Delta) {
		changes = append(changes, fmt.Sprintf("%s %s %s", label, delta.Direction, formatDelta(delta.Value)))
	}
	add("breaches", d.BreachedTotal)
	add("blocked", d.BlockedProjectCount)
	add("at risk", d.AtRiskTotal)
	add("score", d.ScoreAverage)
	lines = append(lines, "Week over week: "+strings.Join(changes, ", ")+".")
	return lines
}

func formatDelta(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%+d", int64(v))
	}
	return fmt.Sprintf("%+.1f", v)
}

// Disagreement flags a project whose external score and derived RAG point in
// opposite directions. It is surfaced, not reconciled.
type Disagreement struct {
	ProjectID string  `json:"project_id"`
	Score     float64 `json:"score"`
	RAG       RAG     `json:"rag"`
}

// Disagreements lists projects scored 70 or more while red, or below 40
// while green.
func Disagreements(rows []ProjectRow) []Disagreement {
	var out []Disagreement
	for _, row := range rows {
		if row.Score == nil {
			continue
		}
		s := *row.Score
		if (s >= 70 && row.RAG == RAGRed) || (s < 40 && row.RAG == RAGGreen) {
			out = append(out, Disagreement{ProjectID: row.ProjectID, Score: s, RAG: row.RAG})
		}
	}
	return out
}
