package signal

import (
	"math"
	"strings"
	"time"
)

// Thresholds are the age cut-offs, in days, used when a record carries no
// explicit status signal.
type Thresholds struct {
	RiskDays   int `json:"risk_days" yaml:"risk_days"`
	BreachDays int `json:"breach_days" yaml:"breach_days"`
}

// DefaultThresholds are applied when a caller supplies none.
var DefaultThresholds = Thresholds{RiskDays: 3, BreachDays: 7}

// Classify derives the age and urgency of one record as of now.
func Classify(r Record, th Thresholds, now time.Time) Classified {
	age := AgeDays(r, now)
	return Classified{
		Record:  r,
		AgeDays: age,
		Urgency: UrgencyFor(r.RawStatus, age, th.BreachDays, th.RiskDays),
	}
}

// ClassifyAll classifies records in order.
func ClassifyAll(records []Record, th Thresholds, now time.Time) []Classified {
	out := make([]Classified, 0, len(records))
	for _, r := range records {
		out = append(out, Classify(r, th, now))
	}
	return out
}

// AgeDays derives a non-negative age in whole days. An explicit positive
// hours-overdue figure wins, then the submission timestamp, then a negative
// hours-to-due figure; with none of those the age is zero.
func AgeDays(r Record, now time.Time) int {
	if r.HoursOverdue != nil && *r.HoursOverdue > 0 {
		return roundDays(*r.HoursOverdue / 24)
	}
	if r.SubmittedAt != nil {
		days := now.Sub(*r.SubmittedAt).Hours() / 24
		return roundDays(math.Max(0, days))
	}
	if r.HoursToDue != nil && *r.HoursToDue < 0 {
		return roundDays(-*r.HoursToDue / 24)
	}
	return 0
}

func roundDays(d float64) int {
	n := int(math.Round(d))
	if n < 0 {
		return 0
	}
	return n
}

// statusSignal is the urgency implied by a textual status, if any.
type statusSignal int

const (
	noSignal statusSignal = iota
	okSignal
	riskSignal
	breachSignal
)

var (
	breachExact = map[string]bool{"r": true, "red": true, "missed": true}
	riskExact   = map[string]bool{"a": true, "amber": true, "yellow": true}
	okExact     = map[string]bool{
		"ok": true, "g": true, "green": true, "on_track": true, "healthy": true,
		"paused": true, "on_hold": true, "within_sla": true,
	}
	negations = map[string]bool{"not": true, "no": true, "non": true, "never": true, "without": true}
)

func signalFor(rawStatus string) statusSignal {
	s := normalizeToken(rawStatus)
	if s == "" {
		return noSignal
	}
	switch {
	case breachExact[s]:
		return breachSignal
	case riskExact[s]:
		return riskSignal
	case okExact[s]:
		return okSignal
	}
	// A negated term ("not_breached", "no breach") carries no signal; age decides.
	tokens := strings.Split(s, "_")
	breach, risk := false, false
	for i, tok := range tokens {
		if i > 0 && negations[tokens[i-1]] {
			continue
		}
		switch {
		case strings.HasPrefix(tok, "breach"), strings.HasPrefix(tok, "overdue"):
			breach = true
		case strings.HasPrefix(tok, "warn"):
			risk = true
		case tok == "at" && i+1 < len(tokens) && tokens[i+1] == "risk":
			risk = true
		}
	}
	switch {
	case breach:
		return breachSignal
	case risk:
		return riskSignal
	}
	return noSignal
}

// UrgencyFor is a pure function of its arguments. A textual status signal
// always wins over age; age thresholds apply only when the status says
// nothing about SLA state.
func UrgencyFor(rawStatus string, ageDays, breachDays, riskDays int) Urgency {
	switch signalFor(rawStatus) {
	case breachSignal:
		return UrgencyBreached
	case riskSignal:
		return UrgencyAtRisk
	case okSignal:
		return UrgencyOK
	}
	switch {
	case ageDays > breachDays:
		return UrgencyBreached
	case ageDays > riskDays:
		return UrgencyAtRisk
	default:
		return UrgencyOK
	}
}
