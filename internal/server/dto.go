package server

import (
	"encoding/json"
	"time"

	"govpulse/internal/domain"
	"govpulse/internal/insights"
	"govpulse/internal/signal"
)

// Request payloads

type CreateProjectRequest struct {
	ID          string   `json:"id,omitempty"`
	Code        string   `json:"code,omitempty"`
	Title       string   `json:"title"`
	Status      string   `json:"status,omitempty" enum:"active,paused,closed,archived"`
	HealthScore *float64 `json:"health_score,omitempty" minimum:"0" maximum:"100"`
}

type UpdateProjectRequest struct {
	Title       *string  `json:"title,omitempty"`
	Status      *string  `json:"status,omitempty" enum:"active,paused,closed,archived"`
	HealthScore *float64 `json:"health_score,omitempty" minimum:"0" maximum:"100"`
	ClearScore  bool     `json:"clear_health_score,omitempty"`
}

type CreateActorRequest struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

type SubmitApprovalRequest struct {
	ID          string  `json:"id,omitempty"`
	Stage       string  `json:"stage"`
	Approver    string  `json:"approver,omitempty" doc:"Actor id or email"`
	SLAStatus   string  `json:"sla_status,omitempty"`
	SubmittedAt *string `json:"submitted_at,omitempty" format:"date-time"`
	DueAt       *string `json:"due_at,omitempty" format:"date-time"`
}

type DecideApprovalRequest struct {
	Decision string `json:"decision" enum:"approved,rejected,withdrawn"`
	Note     string `json:"note,omitempty"`
}

type LogRaidRequest struct {
	ID        string   `json:"id,omitempty"`
	ProjectID string   `json:"project_id,omitempty" doc:"Empty for org-level items"`
	Kind      string   `json:"kind" enum:"risk,assumption,issue,dependency,change"`
	Title     string   `json:"title"`
	Owner     string   `json:"owner,omitempty"`
	Severity  *float64 `json:"severity,omitempty" minimum:"0" maximum:"100"`
	DueAt     *string  `json:"due_at,omitempty" format:"date-time"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type AddMilestoneRequest struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Owner string `json:"owner,omitempty"`
	DueAt string `json:"due_at" format:"date-time"`
}

type ComparePortfolioRequest struct {
	Prior signal.PortfolioRollup `json:"prior"`
}

// Response payloads

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// ProjectSignals is the project tile.
type ProjectSignals struct {
	GeneratedAt string              `json:"generated_at" format:"date-time"`
	Items       []signal.ProjectRow `json:"items"`
	Errors      map[string]string   `json:"errors,omitempty"`
}

// BottleneckSignals is the bottleneck tile.
type BottleneckSignals struct {
	GeneratedAt string                 `json:"generated_at" format:"date-time"`
	Items       []signal.BottleneckRow `json:"items"`
	Errors      map[string]string      `json:"errors,omitempty"`
}

// PortfolioSignals is the portfolio tile.
type PortfolioSignals struct {
	GeneratedAt   string                 `json:"generated_at" format:"date-time"`
	Portfolio     signal.PortfolioRollup `json:"portfolio"`
	Narrative     []string               `json:"narrative"`
	Disagreements []signal.Disagreement  `json:"disagreements,omitempty"`
	Errors        map[string]string      `json:"errors,omitempty"`
}

// Conversion helpers

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func projectSignals(r insights.Report) ProjectSignals {
	items := r.Projects
	if items == nil {
		items = []signal.ProjectRow{}
	}
	return ProjectSignals{GeneratedAt: stamp(r), Items: items, Errors: r.Errors}
}

func bottleneckSignals(r insights.Report) BottleneckSignals {
	items := r.Bottlenecks
	if items == nil {
		items = []signal.BottleneckRow{}
	}
	return BottleneckSignals{GeneratedAt: stamp(r), Items: items, Errors: r.Errors}
}

func portfolioSignals(r insights.Report) PortfolioSignals {
	return PortfolioSignals{
		GeneratedAt:   stamp(r),
		Portfolio:     r.Portfolio,
		Narrative:     r.Narrative,
		Disagreements: r.Disagreements,
		Errors:        r.Errors,
	}
}

func stamp(r insights.Report) string {
	return r.GeneratedAt.Format(time.RFC3339)
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}
