// Package signal turns loosely shaped governance records into SLA
// classifications, project health rows, bottleneck rankings and portfolio
// rollups. Every function in this package is pure: values are built fresh on
// each call and never mutated afterwards.
package signal

import (
	"strings"
	"time"
)

// Kind tags the source shape a record was normalized from.
type Kind string

const (
	KindApproval   Kind = "approval"
	KindRisk       Kind = "risk"
	KindIssue      Kind = "issue"
	KindAssumption Kind = "assumption"
	KindDependency Kind = "dependency"
	KindChange     Kind = "change"
	KindMilestone  Kind = "milestone"
	KindTask       Kind = "task"
	KindArtifact   Kind = "artifact"
	KindUnknown    Kind = "unknown"
)

var knownKinds = map[string]Kind{
	"approval":   KindApproval,
	"risk":       KindRisk,
	"issue":      KindIssue,
	"assumption": KindAssumption,
	"dependency": KindDependency,
	"change":     KindChange,
	"milestone":  KindMilestone,
	"task":       KindTask,
	"artifact":   KindArtifact,
}

// ParseKind maps free text onto a Kind. Plural and prefixed forms such as
// "raid_risk" or "approvals" are accepted; anything else is KindUnknown.
func ParseKind(s string) Kind {
	key := normalizeToken(s)
	if k, ok := knownKinds[key]; ok {
		return k
	}
	key = trimPrefixes(key, "raid_", "governance_")
	if k, ok := knownKinds[key]; ok {
		return k
	}
	if strings.HasSuffix(key, "ies") {
		if k, ok := knownKinds[strings.TrimSuffix(key, "ies")+"y"]; ok {
			return k
		}
	}
	if len(key) > 1 && key[len(key)-1] == 's' {
		if k, ok := knownKinds[key[:len(key)-1]]; ok {
			return k
		}
	}
	switch key {
	case "approval_step", "step", "gate":
		return KindApproval
	case "change_request", "cr":
		return KindChange
	case "document", "deliverable":
		return KindArtifact
	}
	return KindUnknown
}

// Urgency is the three-tier SLA state of a classified record.
type Urgency string

const (
	UrgencyOK       Urgency = "ok"
	UrgencyAtRisk   Urgency = "at_risk"
	UrgencyBreached Urgency = "breached"
)

// RAG is the Red/Amber/Green project health indicator.
type RAG string

const (
	RAGGreen RAG = "G"
	RAGAmber RAG = "A"
	RAGRed   RAG = "R"
)

// Rank orders RAG values worst-first: R=2, A=1, G=0.
func (r RAG) Rank() int {
	switch r {
	case RAGRed:
		return 2
	case RAGAmber:
		return 1
	default:
		return 0
	}
}

const (
	// UnknownActor labels records with no responsible party at all.
	UnknownActor = "Unknown"
	// UnknownUser labels records whose only candidates were opaque identifiers.
	UnknownUser = "Unknown user"
)

// Record is the canonical signal record produced by Normalize.
//
// EntityID is only unique within (Kind, EntityID). ProjectID is empty for
// org-level items. RawStatus is lower-cased and used for classification only.
type Record struct {
	EntityID      string     `json:"entity_id"`
	ProjectID     string     `json:"project_id,omitempty"`
	Kind          Kind       `json:"kind"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	DueAt         *time.Time `json:"due_at,omitempty"`
	Severity      *float64   `json:"severity,omitempty"`
	ActorLabel    string     `json:"actor_label"`
	RawStatus     string     `json:"-"`
	HoursOverdue  *float64   `json:"hours_overdue,omitempty"`
	HoursToDue    *float64   `json:"hours_to_due,omitempty"`
	Stage         string     `json:"stage,omitempty"`
	ProjectTitle  string     `json:"project_title,omitempty"`
	ProjectCode   string     `json:"project_code,omitempty"`
	ProjectStatus string     `json:"project_status,omitempty"`
	Open          bool       `json:"open"`
}

// Key identifies a record across sources.
func (r Record) Key() string {
	return string(r.Kind) + "|" + r.EntityID
}

// Classified is a Record with its derived age and urgency.
type Classified struct {
	Record
	AgeDays int     `json:"age_days"`
	Urgency Urgency `json:"urgency"`
}

// Counts tallies classified records per urgency tier.
type Counts struct {
	OK       int `json:"ok"`
	AtRisk   int `json:"at_risk"`
	Breached int `json:"breached"`
	Total    int `json:"total"`
}

func (c Counts) add(u Urgency) Counts {
	switch u {
	case UrgencyBreached:
		c.Breached++
	case UrgencyAtRisk:
		c.AtRisk++
	default:
		c.OK++
	}
	c.Total = c.OK + c.AtRisk + c.Breached
	return c
}

// RAG derives project health by strict precedence: any breach is red, else
// any at-risk item is amber, else green.
func (c Counts) RAG() RAG {
	switch {
	case c.Breached > 0:
		return RAGRed
	case c.AtRisk > 0:
		return RAGAmber
	default:
		return RAGGreen
	}
}

// ProjectRow is the per-project health signal.
type ProjectRow struct {
	ProjectID     string   `json:"project_id"`
	Title         string   `json:"title"`
	Code          string   `json:"code,omitempty"`
	Counts        Counts   `json:"counts"`
	MaxAgeDays    int      `json:"max_age_days"`
	RAG           RAG      `json:"rag"`
	DominantActor string   `json:"dominant_actor,omitempty"`
	DominantStage string   `json:"dominant_stage,omitempty"`
	Score         *float64 `json:"score,omitempty"`
	DueSoon       int      `json:"due_soon"`
}

// Heat is a presentation tier for bottleneck rows.
type Heat string

const (
	HeatLow    Heat = "low"
	HeatMedium Heat = "medium"
	HeatHigh   Heat = "high"
)

// HeatFor returns the display tier for a maximum wait.
func HeatFor(maxWaitDays int) Heat {
	switch {
	case maxWaitDays > 14:
		return HeatHigh
	case maxWaitDays > 7:
		return HeatMedium
	default:
		return HeatLow
	}
}

// BottleneckRow summarizes the pending load held by one named actor.
type BottleneckRow struct {
	ActorLabel       string  `json:"actor_label"`
	PendingCount     int     `json:"pending_count"`
	ProjectsAffected int     `json:"projects_affected"`
	AvgWaitDays      float64 `json:"avg_wait_days"`
	MaxWaitDays      int     `json:"max_wait_days"`
	Heat             Heat    `json:"heat"`
}
