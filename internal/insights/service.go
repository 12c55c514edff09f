// Package insights assembles governance reports: it plans the source reads,
// runs them through the fetch orchestrator and folds the surviving records
// into project, bottleneck and portfolio signals.
package insights

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"govpulse/internal/config"
	"govpulse/internal/domain"
	"govpulse/internal/fetch"
	"govpulse/internal/repo"
	"govpulse/internal/signal"
)

// ErrInvalidOptions wraps every rejected per-request override.
var ErrInvalidOptions = errors.New("invalid report options")

// Store is the record store the built-in sources read from. repo.Repo
// satisfies it.
type Store interface {
	ConsolidatedSignals(ctx context.Context, now time.Time) ([]repo.SignalRow, error)
	ApprovalSignals(ctx context.Context, now time.Time) ([]repo.SignalRow, error)
	RaidSignals(ctx context.Context, now time.Time) ([]repo.SignalRow, error)
	MilestoneSignals(ctx context.Context, now time.Time) ([]repo.SignalRow, error)
	ListProjects(ctx context.Context, f repo.ProjectFilters) ([]domain.Project, error)
}

type Service struct {
	Store    Store
	Config   *config.Config
	Logger   zerolog.Logger
	Observer fetch.Observer
	// Client is used for remote sources; nil means http.DefaultClient.
	Client *http.Client
	Now    func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) config() *config.Config {
	if s.Config != nil {
		return s.Config
	}
	return config.Default()
}

// Options are per-request overrides of the configured signal settings. Nil
// and empty fields fall back to config.
type Options struct {
	RiskDays    *int
	BreachDays  *int
	ScopeMode   string
	WindowDays  *int
	IncludeIdle *bool
	// Prior is a caller-held snapshot to diff the portfolio against.
	Prior *signal.PortfolioRollup
}

// Settings are the effective values a report was built with.
type Settings struct {
	Thresholds  signal.Thresholds `json:"thresholds"`
	ScopeMode   string            `json:"scope_mode"`
	WindowDays  int               `json:"window_days"`
	IncludeIdle bool              `json:"include_idle"`
}

// Resolve merges opts over cfg and validates the result.
func Resolve(cfg *config.Config, opts Options) (Settings, error) {
	st := Settings{
		Thresholds:  cfg.Signals.Thresholds,
		ScopeMode:   cfg.Signals.ScopeMode,
		WindowDays:  cfg.Signals.WindowDays,
		IncludeIdle: cfg.Signals.IncludeIdle,
	}
	if opts.RiskDays != nil {
		st.Thresholds.RiskDays = *opts.RiskDays
	}
	if opts.BreachDays != nil {
		st.Thresholds.BreachDays = *opts.BreachDays
	}
	if opts.ScopeMode != "" {
		st.ScopeMode = opts.ScopeMode
	}
	if opts.WindowDays != nil {
		st.WindowDays = *opts.WindowDays
	}
	if opts.IncludeIdle != nil {
		st.IncludeIdle = *opts.IncludeIdle
	}
	if st.ScopeMode == "" {
		st.ScopeMode = config.ScopeActive
	}
	switch {
	case st.Thresholds.RiskDays < 0 || st.Thresholds.BreachDays < 0:
		return st, fmt.Errorf("%w: thresholds must not be negative", ErrInvalidOptions)
	case st.Thresholds.BreachDays < st.Thresholds.RiskDays:
		return st, fmt.Errorf("%w: breach_days (%d) must be >= risk_days (%d)", ErrInvalidOptions, st.Thresholds.BreachDays, st.Thresholds.RiskDays)
	case st.ScopeMode != config.ScopeActive && st.ScopeMode != config.ScopeAll:
		return st, fmt.Errorf("%w: scope must be %q or %q", ErrInvalidOptions, config.ScopeActive, config.ScopeAll)
	case st.WindowDays < 0:
		return st, fmt.Errorf("%w: window_days must not be negative", ErrInvalidOptions)
	}
	return st, nil
}

// SourceStatus describes how one source settled.
type SourceStatus struct {
	Name       string      `json:"name"`
	Kind       signal.Kind `json:"kind"`
	Primary    bool        `json:"primary,omitempty"`
	OK         bool        `json:"ok"`
	Records    int         `json:"records"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms"`
}

// Report is everything a dashboard or CLI renders for one refresh.
type Report struct {
	GeneratedAt   time.Time              `json:"generated_at"`
	Settings      Settings               `json:"settings"`
	Projects      []signal.ProjectRow    `json:"projects"`
	Bottlenecks   []signal.BottleneckRow `json:"bottlenecks"`
	Portfolio     signal.PortfolioRollup `json:"portfolio"`
	Narrative     []string               `json:"narrative"`
	Disagreements []signal.Disagreement  `json:"disagreements,omitempty"`
	// Errors maps each failed source to a sanitized message. A non-empty map
	// with a nil error from Build means the report is partial.
	Errors  map[string]string `json:"errors,omitempty"`
	Sources []SourceStatus    `json:"sources"`
}

// Degraded reports whether any source failed.
func (r Report) Degraded() bool { return len(r.Errors) > 0 }

// Build fetches every configured source and derives a report. When no source
// could be read it returns a report carrying only the per-source errors,
// together with fetch.ErrStarved.
func (s Service) Build(ctx context.Context, opts Options) (Report, error) {
	cfg := s.config()
	st, err := Resolve(cfg, opts)
	if err != nil {
		return Report{}, err
	}
	now := s.now()
	log := s.Logger.With().Str("component", "insights").Logger()

	loader := fetch.Loader{
		Logger:   log,
		Observer: s.Observer,
		Limit:    cfg.Sources.Concurrency,
	}
	res, err := loader.Load(ctx, s.Plan(now))
	report := Report{
		GeneratedAt: now.UTC(),
		Settings:    st,
		Errors:      res.Errors(),
	}
	if err != nil {
		if errors.Is(err, fetch.ErrStarved) {
			report.Sources = sourceStatuses(res, nil, nil)
			return report, err
		}
		return Report{}, err
	}

	counts := map[string]int{}
	records := s.merge(res, counts, report.Errors, log)
	report.Sources = sourceStatuses(res, counts, report.Errors)

	catalog, err := s.catalog(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("project catalog unavailable")
		report.Errors["catalog"] = fetch.Sanitize(err.Error())
	}

	records = signal.Pending(records)
	if st.ScopeMode == config.ScopeActive {
		records = activeOnly(records, cfg, catalog)
		catalog = activeCatalog(catalog, cfg)
	}
	classified := signal.ClassifyAll(records, st.Thresholds, now)

	report.Projects = signal.AggregateByProjectWith(classified, signal.AggregateOptions{
		Catalog:     catalog,
		IncludeIdle: st.IncludeIdle,
		Now:         now,
		WindowDays:  st.WindowDays,
	})
	report.Bottlenecks = signal.RankBottlenecks(classified)
	report.Portfolio = signal.Rollup(report.Projects, opts.Prior)
	report.Narrative = report.Portfolio.Narrative()
	report.Disagreements = signal.Disagreements(report.Projects)
	if len(report.Errors) == 0 {
		report.Errors = nil
	}

	log.Debug().
		Int("records", len(classified)).
		Int("projects", len(report.Projects)).
		Int("bottlenecks", len(report.Bottlenecks)).
		Int("failed_sources", len(report.Errors)).
		Msg("report built")
	return report, nil
}

// merge normalizes the payload of every successful outcome, primary first.
// A record seen in an earlier outcome wins over the same (kind, id) later on;
// records without an id are never deduplicated.
func (s Service) merge(res fetch.Result, counts map[string]int, errs map[string]string, log zerolog.Logger) []signal.Record {
	seen := map[string]bool{}
	var out []signal.Record
	for _, o := range res.Succeeded() {
		items, err := o.Items()
		if err != nil {
			msg := fetch.Sanitize(err.Error())
			errs[o.Name] = msg
			log.Warn().Str("source", o.Name).Str("error", msg).Msg("source payload unusable")
			continue
		}
		recs := signal.Normalize(items, o.Kind)
		counts[o.Name] = len(recs)
		for _, r := range recs {
			if r.EntityID != "" {
				if seen[r.Key()] {
					continue
				}
				seen[r.Key()] = true
			}
			out = append(out, r)
		}
	}
	return out
}

func (s Service) catalog(ctx context.Context) (map[string]signal.ProjectInfo, error) {
	if s.Store == nil {
		return nil, nil
	}
	projects, err := s.Store.ListProjects(ctx, repo.ProjectFilters{})
	if err != nil {
		return nil, err
	}
	out := make(map[string]signal.ProjectInfo, len(projects))
	for _, p := range projects {
		out[p.ID] = signal.ProjectInfo{Title: p.Title, Code: p.Code, Status: p.Status, Score: p.HealthScore}
	}
	return out, nil
}

func activeCatalog(catalog map[string]signal.ProjectInfo, cfg *config.Config) map[string]signal.ProjectInfo {
	out := make(map[string]signal.ProjectInfo, len(catalog))
	for id, info := range catalog {
		if !cfg.IsInactive(info.Status) {
			out[id] = info
		}
	}
	return out
}

// activeOnly drops records of projects whose status is configured inactive.
// The record's own project status wins; the catalog fills in when a source
// does not carry one. Org-level records are kept.
func activeOnly(records []signal.Record, cfg *config.Config, catalog map[string]signal.ProjectInfo) []signal.Record {
	out := make([]signal.Record, 0, len(records))
	for _, r := range records {
		status := r.ProjectStatus
		if status == "" {
			status = catalog[r.ProjectID].Status
		}
		if r.ProjectID != "" && cfg.IsInactive(status) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func sourceStatuses(res fetch.Result, counts map[string]int, errs map[string]string) []SourceStatus {
	out := make([]SourceStatus, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		st := SourceStatus{
			Name:       o.Name,
			Kind:       o.Kind,
			Primary:    o.Primary,
			OK:         o.OK(),
			Records:    counts[o.Name],
			DurationMS: o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			st.Error = o.Err.Message
		} else if msg, ok := errs[o.Name]; ok {
			st.OK, st.Error = false, msg
		}
		out = append(out, st)
	}
	return out
}
