package insights

import (
	"context"
	"net/http"
	"time"

	"govpulse/internal/config"
	"govpulse/internal/fetch"
	"govpulse/internal/repo"
	"govpulse/internal/signal"
)

type storeQuery func(ctx context.Context, now time.Time) ([]repo.SignalRow, error)

// builtin returns the store query and kind hint behind a built-in source.
func (s Service) builtin(name string) (storeQuery, signal.Kind, bool) {
	if s.Store == nil {
		return nil, "", false
	}
	switch name {
	case config.SourceConsolidated:
		return s.Store.ConsolidatedSignals, signal.KindUnknown, true
	case config.SourceApprovals:
		return s.Store.ApprovalSignals, signal.KindApproval, true
	case config.SourceRaid:
		// rows carry their own RAID kind
		return s.Store.RaidSignals, signal.KindUnknown, true
	case config.SourceMilestones:
		return s.Store.MilestoneSignals, signal.KindMilestone, true
	}
	return nil, "", false
}

func querySpec(name string, kind signal.Kind, q storeQuery, now time.Time) fetch.Spec {
	return fetch.Spec{
		Name: name,
		Kind: kind,
		Source: fetch.QuerySource{
			SourceName: name,
			Query: func(ctx context.Context) (any, error) {
				return q(ctx, now)
			},
		},
	}
}

// Plan lays out the reads for one report: the consolidated view as primary,
// then the per-feature store queries and remote feeds as fallbacks. A
// configured source that cannot be built is kept with a nil Source so it
// surfaces as a failed outcome.
func (s Service) Plan(now time.Time) fetch.Plan {
	cfg := s.config()
	var plan fetch.Plan
	if name := cfg.Sources.Primary; name != "" {
		spec := fetch.Spec{Name: name, Kind: signal.KindUnknown}
		if q, kind, ok := s.builtin(name); ok {
			spec = querySpec(name, kind, q, now)
		}
		plan.Primary = &spec
	}
	for _, name := range cfg.Sources.Fallbacks {
		spec := fetch.Spec{Name: name, Kind: signal.KindUnknown}
		if q, kind, ok := s.builtin(name); ok {
			spec = querySpec(name, kind, q, now)
		}
		plan.Fallbacks = append(plan.Fallbacks, spec)
	}
	for _, r := range cfg.Sources.Remote {
		plan.Fallbacks = append(plan.Fallbacks, s.remoteSpec(r))
	}
	return plan
}

func (s Service) remoteSpec(r config.RemoteSource) fetch.Spec {
	kind := signal.ParseKind(r.Kind)
	header := http.Header{}
	for k, v := range r.Headers {
		header.Set(k, v)
	}
	return fetch.Spec{
		Name: r.Name,
		Kind: kind,
		Source: &fetch.HTTPSource{
			SourceName: r.Name,
			URL:        r.URL,
			Client:     s.Client,
			Header:     header,
			Timeout:    r.Timeout,
		},
	}
}
