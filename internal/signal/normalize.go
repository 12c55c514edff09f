package signal

import "strings"

// Normalize maps arbitrary source records onto canonical Records. It never
// fails: values that are not objects, or objects with none of the expected
// fields, degrade to a KindUnknown record labelled UnknownActor. hint is the
// kind implied by the source the records came from and is used only when a
// record does not carry a recognizable kind of its own; pass KindUnknown when
// the source is mixed.
func Normalize(raw []any, hint Kind) []Record {
	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		out = append(out, NormalizeOne(item, hint))
	}
	return out
}

// NormalizeOne normalizes a single record. See Normalize.
func NormalizeOne(item any, hint Kind) Record {
	r, ok := asObject(item)
	if !ok {
		return Record{Kind: KindUnknown, ActorLabel: UnknownActor, Open: true}
	}
	kind := ParseKind(firstString(r, kindFields))
	if kind == KindUnknown && hint != "" {
		kind = hint
	}
	rec := Record{
		EntityID:      firstString(r, entityIDFields),
		ProjectID:     firstString(r, projectFields),
		Kind:          kind,
		SubmittedAt:   firstTime(r, submittedAt),
		DueAt:         firstTime(r, dueAtFields),
		Severity:      firstSeverity(r),
		ActorLabel:    resolveActor(r),
		RawStatus:     strings.ToLower(firstString(r, statusFields)),
		HoursOverdue:  firstNumber(r, overdueFields),
		HoursToDue:    firstNumber(r, toDueFields),
		Stage:         firstString(r, stageFields),
		ProjectTitle:  firstString(r, titleFields),
		ProjectCode:   firstString(r, codeFields),
		ProjectStatus: strings.ToLower(firstString(r, projStatus)),
		Open:          true,
	}
	for _, acc := range lifecycle {
		v, ok := acc(r)
		if !ok {
			continue
		}
		if s, ok := asString(v); ok && IsTerminal(s) {
			rec.Open = false
			break
		}
	}
	return rec
}

// Pending filters records down to open items.
func Pending(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Open {
			out = append(out, r)
		}
	}
	return out
}
