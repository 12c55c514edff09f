package domain

type Project struct {
	ID          string   `json:"id"`
	Code        string   `json:"code,omitempty"`
	Title       string   `json:"title"`
	Status      string   `json:"status" enum:"active,paused,closed,archived"`
	HealthScore *float64 `json:"health_score,omitempty" minimum:"0" maximum:"100"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type ApprovalStep struct {
	ID           string  `json:"id"`
	ProjectID    string  `json:"project_id"`
	Stage        string  `json:"stage"`
	ApproverID   *string `json:"approver_id,omitempty"`
	Status       string  `json:"status" enum:"pending,approved,rejected,withdrawn"`
	SLAStatus    string  `json:"sla_status,omitempty"`
	DecisionNote string  `json:"decision_note,omitempty"`
	SubmittedAt  string  `json:"submitted_at" format:"date-time"`
	DueAt        *string `json:"due_at,omitempty" format:"date-time"`
	DecidedAt    *string `json:"decided_at,omitempty" format:"date-time"`
}

type RaidItem struct {
	ID        string   `json:"id"`
	ProjectID *string  `json:"project_id,omitempty"`
	Kind      string   `json:"kind" enum:"risk,assumption,issue,dependency,change"`
	Title     string   `json:"title"`
	OwnerID   *string  `json:"owner_id,omitempty"`
	Severity  *float64 `json:"severity,omitempty" minimum:"0" maximum:"100"`
	Status    string   `json:"status" enum:"open,mitigating,closed,resolved"`
	CreatedAt string   `json:"created_at" format:"date-time"`
	UpdatedAt string   `json:"updated_at" format:"date-time"`
	DueAt     *string  `json:"due_at,omitempty" format:"date-time"`
}

type Milestone struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Title     string  `json:"title"`
	OwnerID   *string `json:"owner_id,omitempty"`
	Status    string  `json:"status" enum:"planned,achieved,missed,cancelled"`
	DueAt     string  `json:"due_at" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
