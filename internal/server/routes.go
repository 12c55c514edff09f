package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"govpulse/internal/domain"
	"govpulse/internal/engine"
	"govpulse/internal/fetch"
	"govpulse/internal/insights"
	"govpulse/internal/repo"
	"govpulse/internal/signal"
)

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
}

func (h handlers) registerProjects(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermProjectsWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.engine.CreateProject(ctx, engine.ProjectCreateOptions{
			ID:          input.Body.ID,
			Code:        input.Body.Code,
			Title:       input.Body.Title,
			Status:      input.Body.Status,
			HealthScore: input.Body.HealthScore,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,paused,closed,archived"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := h.engine.Repo.ListProjects(ctx, repo.ProjectFilters{Status: input.Status})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Project{}
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project by id or code",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := h.engine.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermProjectsWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.engine.UpdateProject(ctx, input.ProjectID, repo.ProjectUpdate{
			Title:       input.Body.Title,
			Status:      input.Body.Status,
			HealthScore: input.Body.HealthScore,
			ClearScore:  input.Body.ClearScore,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-actor",
		Method:        http.MethodPost,
		Path:          "/actors",
		Summary:       "Register an actor",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateActorRequest `json:"body"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermProjectsWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := h.engine.AddActor(ctx, domain.Actor{
			ID:          input.Body.ID,
			DisplayName: input.Body.DisplayName,
			Email:       input.Body.Email,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: a}, nil
	})
}

func (h handlers) registerItems(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-approval",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/approvals",
		Summary:       "Submit an approval step",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		Body      SubmitApprovalRequest `json:"body"`
	}) (*struct {
		Body domain.ApprovalStep `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermItemsWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		submitted, err := parseOptionalTime("submitted_at", input.Body.SubmittedAt)
		if err != nil {
			return nil, handleError(err)
		}
		due, err := parseOptionalTime("due_at", input.Body.DueAt)
		if err != nil {
			return nil, handleError(err)
		}
		step, err := h.engine.SubmitApproval(ctx, engine.ApprovalOptions{
			ID:          input.Body.ID,
			ProjectID:   input.ProjectID,
			Stage:       input.Body.Stage,
			Approver:    input.Body.Approver,
			SLAStatus:   input.Body.SLAStatus,
			SubmittedAt: submitted,
			DueAt:       due,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ApprovalStep `json:"body"`
		}{Body: step}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-approval",
		Method:      http.MethodPost,
		Path:        "/approvals/{approval_id}/decision",
		Summary:     "Decide a pending approval step",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ApprovalID string                `path:"approval_id"`
		Body       DecideApprovalRequest `json:"body"`
	}) (*struct {
		Body domain.ApprovalStep `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermItemsWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		step, err := h.engine.DecideApproval(ctx, input.ApprovalID, input.Body.Decision, input.Body.Note, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ApprovalStep `json:"body"`
		}{Body: step}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "log-raid",
		Method:        http.MethodPost,
		Path:          "/raid",
		Summary:       "Log a RAID item",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body LogRaidRequest `json:"body"`
	}) (*struct {
		Body domain.RaidItem `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermItemsWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		due, err := parseOptionalTime("due_at", input.Body.DueAt)
		if err != nil {
			return nil, handleError(err)
		}
		it, err := h.engine.LogRaidItem(ctx, engine.RaidOptions{
			ID:        input.Body.ID,
			ProjectID: input.Body.ProjectID,
			Kind:      input.Body.Kind,
			Title:     input.Body.Title,
			Owner:     input.Body.Owner,
			Severity:  input.Body.Severity,
			DueAt:     due,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RaidItem `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-raid-status",
		Method:      http.MethodPatch,
		Path:        "/raid/{raid_id}",
		Summary:     "Move a RAID item to a new status",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		RaidID string        `path:"raid_id"`
		Body   StatusRequest `json:"body"`
	}) (*struct {
		Body domain.RaidItem `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermItemsWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		it, err := h.engine.SetRaidStatus(ctx, input.RaidID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RaidItem `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-milestone",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/milestones",
		Summary:       "Add a milestone",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      AddMilestoneRequest `json:"body"`
	}) (*struct {
		Body domain.Milestone `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermItemsWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		due, err := parseOptionalTime("due_at", &input.Body.DueAt)
		if err != nil {
			return nil, handleError(err)
		}
		if due == nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "due_at is required", nil)
		}
		m, err := h.engine.AddMilestone(ctx, engine.MilestoneOptions{
			ID:        input.Body.ID,
			ProjectID: input.ProjectID,
			Title:     input.Body.Title,
			Owner:     input.Body.Owner,
			DueAt:     *due,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Milestone `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-milestone-status",
		Method:      http.MethodPatch,
		Path:        "/milestones/{milestone_id}",
		Summary:     "Move a milestone to a new status",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		MilestoneID string        `path:"milestone_id"`
		Body        StatusRequest `json:"body"`
	}) (*struct {
		Body domain.Milestone `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermItemsWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := h.engine.SetMilestoneStatus(ctx, input.MilestoneID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Milestone `json:"body"`
		}{Body: m}, nil
	})
}

// signalQuery carries the per-request overrides. Numeric fields are strings
// so an absent value can fall back to config.
type signalQuery struct {
	Scope       string `query:"scope" enum:"active,all" doc:"Project scope; defaults to config"`
	RiskDays    string `query:"risk_days" pattern:"^[0-9]*$" doc:"Age in days above which an item is at risk"`
	BreachDays  string `query:"breach_days" pattern:"^[0-9]*$" doc:"Age in days above which an item is breached"`
	WindowDays  string `query:"window_days" pattern:"^[0-9]*$" doc:"Due-soon window in days"`
	IncludeIdle string `query:"include_idle" enum:"true,false" doc:"Show projects with nothing pending"`
}

func optionalInt(field, v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, newAPIError(http.StatusBadRequest, "invalid_options", field+" must be a whole number", map[string]any{field: v})
	}
	return &n, nil
}

func (q signalQuery) options() (insights.Options, error) {
	var (
		opts insights.Options
		err  error
	)
	opts.ScopeMode = q.Scope
	if opts.RiskDays, err = optionalInt("risk_days", q.RiskDays); err != nil {
		return opts, err
	}
	if opts.BreachDays, err = optionalInt("breach_days", q.BreachDays); err != nil {
		return opts, err
	}
	if opts.WindowDays, err = optionalInt("window_days", q.WindowDays); err != nil {
		return opts, err
	}
	if q.IncludeIdle != "" {
		idle := q.IncludeIdle == "true"
		opts.IncludeIdle = &idle
	}
	return opts, nil
}

// report builds a report for one surface and maps starvation to a single
// 503 carrying every per-source error.
func (h handlers) report(ctx context.Context, surface string, q signalQuery, prior *signal.PortfolioRollup) (insights.Report, error) {
	if err := requirePermission(ctx, PermSignalsRead); err != nil {
		return insights.Report{}, handleError(err)
	}
	opts, err := q.options()
	if err != nil {
		return insights.Report{}, err
	}
	opts.Prior = prior
	r, err := h.insights.Build(ctx, opts)
	outcome := "ok"
	switch {
	case errors.Is(err, fetch.ErrStarved):
		outcome = "starved"
	case err != nil:
		outcome = "error"
	case r.Degraded():
		outcome = "degraded"
	}
	if h.metrics != nil {
		h.metrics.RecordReport(surface, outcome)
	}
	if errors.Is(err, fetch.ErrStarved) {
		details := map[string]any{}
		for name, msg := range r.Errors {
			details[name] = msg
		}
		return r, newAPIError(http.StatusServiceUnavailable, "signal_starvation", "no signal source could be read", details)
	}
	if err != nil {
		return r, handleError(err)
	}
	return r, nil
}

func (h handlers) registerSignals(api huma.API) {
	readErrors := []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable}

	huma.Register(api, huma.Operation{
		OperationID: "signals-report",
		Method:      http.MethodGet,
		Path:        "/signals",
		Summary:     "Full governance report",
		Errors:      readErrors,
	}, func(ctx context.Context, input *signalQuery) (*struct {
		Body insights.Report `json:"body"`
	}, error) {
		r, err := h.report(ctx, "report", *input, nil)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body insights.Report `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "signals-projects",
		Method:      http.MethodGet,
		Path:        "/signals/projects",
		Summary:     "Project health rows, worst first",
		Errors:      readErrors,
	}, func(ctx context.Context, input *signalQuery) (*struct {
		Body ProjectSignals `json:"body"`
	}, error) {
		r, err := h.report(ctx, "projects", *input, nil)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body ProjectSignals `json:"body"`
		}{Body: projectSignals(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "signals-bottlenecks",
		Method:      http.MethodGet,
		Path:        "/signals/bottlenecks",
		Summary:     "Actors holding pending items, busiest first",
		Errors:      readErrors,
	}, func(ctx context.Context, input *signalQuery) (*struct {
		Body BottleneckSignals `json:"body"`
	}, error) {
		r, err := h.report(ctx, "bottlenecks", *input, nil)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body BottleneckSignals `json:"body"`
		}{Body: bottleneckSignals(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "signals-portfolio",
		Method:      http.MethodGet,
		Path:        "/signals/portfolio",
		Summary:     "Portfolio rollup and narrative",
		Errors:      readErrors,
	}, func(ctx context.Context, input *signalQuery) (*struct {
		Body PortfolioSignals `json:"body"`
	}, error) {
		r, err := h.report(ctx, "portfolio", *input, nil)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body PortfolioSignals `json:"body"`
		}{Body: portfolioSignals(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "signals-portfolio-compare",
		Method:      http.MethodPost,
		Path:        "/signals/portfolio/compare",
		Summary:     "Portfolio rollup with deltas against a prior snapshot",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		signalQuery
		Body ComparePortfolioRequest `json:"body"`
	}) (*struct {
		Body PortfolioSignals `json:"body"`
	}, error) {
		prior := input.Body.Prior
		r, err := h.report(ctx, "portfolio", input.signalQuery, &prior)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body PortfolioSignals `json:"body"`
		}{Body: portfolioSignals(r)}, nil
	})
}

func (h handlers) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(strings.TrimSpace(input.Cursor), 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := h.engine.Repo.LatestEvents(ctx, repo.EventFilters{
			ProjectID:  input.ProjectID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
			Before:     cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
