package signal

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Raw is one loosely typed source record, usually a decoded JSON object.
type Raw = map[string]any

// accessor reads one candidate value from a raw record. ok is false when the
// candidate is missing or empty.
type accessor func(Raw) (any, bool)

func field(name string) accessor {
	return func(r Raw) (any, bool) {
		v, ok := r[name]
		if !ok || isEmpty(v) {
			return nil, false
		}
		return v, true
	}
}

func nested(parent, name string) accessor {
	return func(r Raw) (any, bool) {
		obj, ok := asObject(r[parent])
		if !ok {
			return nil, false
		}
		return field(name)(obj)
	}
}

func fields(names ...string) []accessor {
	out := make([]accessor, 0, len(names))
	for _, n := range names {
		out = append(out, field(n))
	}
	return out
}

// Ordered candidate lists per canonical field. The first non-empty value that
// converts to the target type wins.
var (
	entityIDFields = fields("id", "entity_id", "approval_id", "step_id", "item_id", "raid_id", "milestone_id", "artifact_id", "key")
	projectFields  = append(fields("project_id", "projectId"), nested("project", "id"), field("project"))
	kindFields     = fields("kind", "type", "item_type", "entity_type", "raid_type", "category")
	submittedAt    = fields("submitted_at", "created_at", "computed_at", "updated_at", "requested_at")
	dueAtFields    = fields("due_at", "due_date", "sla_due_at", "target_date", "deadline")
	severityFields = fields("severity", "severity_score", "risk_score", "impact_score", "priority")
	overdueFields  = fields("hours_overdue", "overdue_hours")
	toDueFields    = fields("hours_to_due", "hours_remaining", "sla_hours_remaining")
	statusFields   = fields("sla_status", "sla_state", "rag", "rag_status", "status", "state")
	lifecycle      = fields("decision", "status", "state")
	stageFields    = fields("stage", "step_name", "approval_stage", "gate", "phase")
	titleFields    = append(fields("project_title", "project_name"), nested("project", "title"), nested("project", "name"))
	codeFields     = append(fields("project_code"), nested("project", "code"))
	projStatus     = append(fields("project_status"), nested("project", "status"))

	actorFields = []accessor{
		field("approver_name"), field("approver_label"), field("approver_display_name"),
		nested("approver", "name"), nested("approver", "display_name"),
		field("owner_name"), field("owner_label"), nested("owner", "name"),
		field("assignee_name"), nested("assignee", "name"),
		field("actor_label"), field("actor_name"), field("display_name"),
		field("approver_email"), nested("approver", "email"),
		field("owner_email"), nested("owner", "email"),
		field("assignee_email"), field("actor_email"), field("email"),
		field("approver"), field("owner"), field("assignee"),
		field("approver_id"), field("owner_id"), field("assignee_id"), field("actor_id"), field("user_id"),
	}
)

func firstString(r Raw, accs []accessor) string {
	for _, acc := range accs {
		v, ok := acc(r)
		if !ok {
			continue
		}
		if s, ok := asString(v); ok {
			return s
		}
	}
	return ""
}

func firstTime(r Raw, accs []accessor) *time.Time {
	for _, acc := range accs {
		v, ok := acc(r)
		if !ok {
			continue
		}
		if t, ok := asTime(v); ok {
			return &t
		}
	}
	return nil
}

func firstNumber(r Raw, accs []accessor) *float64 {
	for _, acc := range accs {
		v, ok := acc(r)
		if !ok {
			continue
		}
		if f, ok := asFloat(v); ok {
			return &f
		}
	}
	return nil
}

func firstSeverity(r Raw) *float64 {
	for _, acc := range severityFields {
		v, ok := acc(r)
		if !ok {
			continue
		}
		if f, ok := asFloat(v); ok {
			f = math.Max(0, math.Min(100, f))
			return &f
		}
		if s, ok := asString(v); ok {
			if f, ok := severityWords[normalizeToken(s)]; ok {
				return &f
			}
		}
	}
	return nil
}

var severityWords = map[string]float64{
	"critical":  90,
	"very_high": 90,
	"high":      70,
	"medium":    50,
	"moderate":  50,
	"low":       20,
	"very_low":  10,
}

// resolveActor walks the candidate list and returns the first label that is
// safe to show a person.
func resolveActor(r Raw) string {
	var candidates []string
	for _, acc := range actorFields {
		v, ok := acc(r)
		if !ok {
			continue
		}
		if s, ok := asString(v); ok {
			candidates = append(candidates, s)
		}
	}
	return ResolveActorLabel(candidates...)
}

// ResolveActorLabel returns the first candidate that is not an opaque
// identifier. When every non-empty candidate is identifier-like the result is
// UnknownUser; when there are no candidates at all it is UnknownActor. A raw
// identifier is never returned.
func ResolveActorLabel(candidates ...string) string {
	sawIdentifier := false
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || isNullish(c) {
			continue
		}
		if IsIdentifierLike(c) {
			sawIdentifier = true
			continue
		}
		return c
	}
	if sawIdentifier {
		return UnknownUser
	}
	return UnknownActor
}

var machineTag = regexp.MustCompile(`^[a-z][a-z0-9_-]*[:|]\S+$`)

// IsIdentifierLike reports whether s looks like an opaque machine identifier:
// a canonical 36-character hyphenated UUID, or a value carrying a machine
// prefix such as "user:" or "auth0|".
func IsIdentifierLike(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) == 36 && s[8] == '-' && s[13] == '-' && s[18] == '-' && s[23] == '-' {
		if _, err := uuid.Parse(s); err == nil {
			return true
		}
	}
	return machineTag.MatchString(s)
}

var terminalStates = map[string]bool{
	"approved":  true,
	"rejected":  true,
	"closed":    true,
	"done":      true,
	"resolved":  true,
	"completed": true,
	"complete":  true,
	"cancelled": true,
	"canceled":  true,
	"archived":  true,
	"withdrawn": true,
	"achieved":  true,
}

// IsTerminal reports whether a lifecycle status means the item is no longer
// pending.
func IsTerminal(status string) bool {
	return terminalStates[normalizeToken(status)]
}

func asObject(v any) (Raw, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

func isNullish(s string) bool {
	switch strings.ToLower(s) {
	case "null", "undefined", "nil", "none", "n/a":
		return true
	}
	return false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(t)
		return s == "" || isNullish(s)
	case []byte:
		return len(strings.TrimSpace(string(t))) == 0
	}
	return false
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case []byte:
		s := strings.TrimSpace(string(t))
		return s, s != ""
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func asFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case []byte:
		return asFloat(string(t))
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epoch(f)
		}
		return time.Time{}, false
	case []byte:
		return asTime(string(t))
	}
	if f, ok := asFloat(v); ok {
		return epoch(f)
	}
	return time.Time{}, false
}

// epoch accepts seconds or milliseconds since the Unix epoch.
func epoch(f float64) (time.Time, bool) {
	if f <= 0 {
		return time.Time{}, false
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	return time.Unix(int64(f), 0).UTC(), true
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

func trimPrefixes(s string, prefixes ...string) string {
	for _, p := range prefixes {
		s = strings.TrimPrefix(s, p)
	}
	return s
}
