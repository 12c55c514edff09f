// Package fetch runs the independent reads that feed the signal pipeline.
//
// Every source in a Plan is fetched concurrently and the join waits for all of
// them to settle. One failing source never cancels or taints another; the
// caller gets one Outcome per source and decides what to show. Load reports
// ErrStarved only when no source at all produced usable JSON.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"govpulse/internal/signal"
)

// ErrStarved means every fallback failed and the primary source failed or
// was never configured.
var ErrStarved = errors.New("signal starvation: no source could be read")

// Source is one independently fetchable payload.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]byte, error)
}

// Spec binds a Source to the record kind its payload holds. Kind is a hint
// for the normalizer; use signal.KindUnknown for mixed payloads.
type Spec struct {
	Name   string
	Kind   signal.Kind
	Source Source
}

func (s Spec) name() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Source != nil {
		return s.Source.Name()
	}
	return "unnamed"
}

// Plan is the set of reads issued for one request. Primary is the
// consolidated source; Fallbacks are the per-feature sources.
type Plan struct {
	Primary   *Spec
	Fallbacks []Spec
}

// Len is the number of sources the plan issues.
func (p Plan) Len() int {
	n := len(p.Fallbacks)
	if p.Primary != nil {
		n++
	}
	return n
}

// Outcome is the settled state of one source: either a JSON payload or a
// sanitized error, never both.
type Outcome struct {
	Name     string          `json:"name"`
	Kind     signal.Kind     `json:"kind"`
	Primary  bool            `json:"primary,omitempty"`
	Payload  json.RawMessage `json:"-"`
	Err      *SourceError    `json:"error,omitempty"`
	Duration time.Duration   `json:"-"`
}

// OK reports whether the source produced a usable payload.
func (o Outcome) OK() bool { return o.Err == nil }

// Result holds one Outcome per issued source, primary first, then fallbacks
// in plan order.
type Result struct {
	Outcomes []Outcome
	Fatal    bool
}

// Succeeded returns the outcomes that carry a payload.
func (r Result) Succeeded() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Errors maps each failed source to its sanitized message.
func (r Result) Errors() map[string]string {
	out := map[string]string{}
	for _, o := range r.Outcomes {
		if !o.OK() {
			out[o.Name] = o.Err.Message
		}
	}
	return out
}

// PrimaryOK reports whether a configured primary source succeeded.
func (r Result) PrimaryOK() bool {
	for _, o := range r.Outcomes {
		if o.Primary {
			return o.OK()
		}
	}
	return false
}

// Observer receives one call per settled source and one per starved load.
type Observer interface {
	ObserveFetch(source string, ok bool, d time.Duration)
	ObserveStarvation()
}

// Loader carries the optional collaborators of Load. The zero value is ready
// to use.
type Loader struct {
	Logger   zerolog.Logger
	Observer Observer
	// Limit caps concurrent fetches; zero means one goroutine per source.
	Limit int
}

// Load runs plan with a zero Loader.
func Load(ctx context.Context, plan Plan) (Result, error) {
	return Loader{Logger: zerolog.Nop()}.Load(ctx, plan)
}

// Load fetches every source in plan concurrently and waits for all of them.
// A cancelled ctx yields ctx.Err() and an empty Result. When no source
// succeeded the Result is still returned, with Fatal set, alongside
// ErrStarved.
func (l Loader) Load(ctx context.Context, plan Plan) (Result, error) {
	specs := make([]Spec, 0, plan.Len())
	if plan.Primary != nil {
		specs = append(specs, *plan.Primary)
	}
	specs = append(specs, plan.Fallbacks...)

	outcomes := make([]Outcome, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	if l.Limit > 0 {
		g.SetLimit(l.Limit)
	}
	for i := range specs {
		g.Go(func() error {
			outcomes[i] = l.fetchOne(gctx, specs[i], plan.Primary != nil && i == 0)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Outcomes: outcomes}
	if len(res.Succeeded()) == 0 {
		res.Fatal = true
		if l.Observer != nil {
			l.Observer.ObserveStarvation()
		}
		l.Logger.Error().Int("sources", len(specs)).Msg("signal starvation")
		return res, ErrStarved
	}
	return res, nil
}

func (l Loader) fetchOne(ctx context.Context, spec Spec, primary bool) Outcome {
	out := Outcome{Name: spec.name(), Kind: spec.Kind, Primary: primary}
	start := time.Now()
	defer func() {
		if l.Observer != nil {
			l.Observer.ObserveFetch(out.Name, out.OK(), out.Duration)
		}
	}()

	if spec.Source == nil {
		out.Err = newSourceError(out.Name, errors.New("source not configured"))
		return out
	}
	body, err := safeFetch(ctx, spec.Source)
	out.Duration = time.Since(start)
	if err == nil {
		err = validatePayload(body)
	}
	if err != nil {
		out.Err = newSourceError(out.Name, err)
		l.Logger.Warn().Str("source", out.Name).Str("error", out.Err.Message).Msg("source failed")
		return out
	}
	out.Payload = json.RawMessage(body)
	return out
}

// safeFetch contains a panicking source to its own outcome.
func safeFetch(ctx context.Context, src Source) (body []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			body, err = nil, errors.New("source panicked")
		}
	}()
	return src.Fetch(ctx)
}

// Items decodes the payload as a list of records. A bare array is used as
// is; an object is unwrapped through its "data", "items", "rows" or
// "records" member, and otherwise treated as a single record.
func (o Outcome) Items() ([]any, error) {
	if !o.OK() {
		return nil, o.Err
	}
	var v any
	if err := json.Unmarshal(o.Payload, &v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []any:
		return t, nil
	case map[string]any:
		for _, key := range []string{"data", "items", "rows", "records"} {
			if list, ok := t[key].([]any); ok {
				return list, nil
			}
		}
		return []any{t}, nil
	case nil:
		return nil, nil
	}
	return []any{v}, nil
}
