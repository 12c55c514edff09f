package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func ptrF(f float64) *float64 { return &f }

func ptrT(t time.Time) *time.Time { return &t }

func TestAgeDays_Precedence(t *testing.T) {
	tenDaysAgo := testNow.Add(-10 * 24 * time.Hour)

	cases := []struct {
		name string
		rec  Record
		want int
	}{
		{"overdue wins over submission", Record{HoursOverdue: ptrF(48), SubmittedAt: ptrT(tenDaysAgo)}, 2},
		{"submission only", Record{SubmittedAt: ptrT(tenDaysAgo)}, 10},
		{"zero overdue falls through", Record{HoursOverdue: ptrF(0), SubmittedAt: ptrT(tenDaysAgo)}, 10},
		{"future submission clamps", Record{SubmittedAt: ptrT(testNow.Add(72 * time.Hour))}, 0},
		{"negative hours to due", Record{HoursToDue: ptrF(-72)}, 3},
		{"positive hours to due", Record{HoursToDue: ptrF(72)}, 0},
		{"submission beats hours to due", Record{SubmittedAt: ptrT(testNow.Add(-24 * time.Hour)), HoursToDue: ptrF(-240)}, 1},
		{"nothing", Record{}, 0},
		{"rounds half days", Record{HoursOverdue: ptrF(36)}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AgeDays(tc.rec, testNow))
		})
	}
}

func TestUrgencyFor(t *testing.T) {
	cases := []struct {
		status string
		age    int
		want   Urgency
	}{
		{"breached", 0, UrgencyBreached},
		{"sla_breach", 0, UrgencyBreached},
		{"overdue", 1, UrgencyBreached},
		{"r", 0, UrgencyBreached},
		{"red", 0, UrgencyBreached},
		{"warning", 0, UrgencyAtRisk},
		{"at_risk", 0, UrgencyAtRisk},
		{"at risk", 0, UrgencyAtRisk},
		{"a", 0, UrgencyAtRisk},
		{"paused", 30, UrgencyOK},
		{"on hold", 30, UrgencyOK},
		{"green", 30, UrgencyOK},
		{"", 8, UrgencyBreached},
		{"", 7, UrgencyAtRisk},
		{"", 4, UrgencyAtRisk},
		{"", 3, UrgencyOK},
		{"pending", 8, UrgencyBreached},
		{"pending", 0, UrgencyOK},
		{"missed", 0, UrgencyBreached},
		{"not_breached", 0, UrgencyOK},
		{"no breach", 0, UrgencyOK},
		{"not overdue", 0, UrgencyOK},
		{"not at risk", 0, UrgencyOK},
		{"unwarned", 0, UrgencyOK},
		{"not_breached", 8, UrgencyBreached},
		{"overdue, not escalated", 0, UrgencyBreached},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, UrgencyFor(tc.status, tc.age, 7, 3), "%q age=%d", tc.status, tc.age)
	}
}

func TestClassify_StatusBeatsAge(t *testing.T) {
	old := testNow.Add(-30 * 24 * time.Hour)
	c := Classify(Record{RawStatus: "paused", SubmittedAt: ptrT(old)}, DefaultThresholds, testNow)
	assert.Equal(t, 30, c.AgeDays)
	assert.Equal(t, UrgencyOK, c.Urgency)

	c = Classify(Record{RawStatus: "overdue"}, DefaultThresholds, testNow)
	assert.Equal(t, 0, c.AgeDays)
	assert.Equal(t, UrgencyBreached, c.Urgency)
}

func TestClassifyAll_KeepsOrder(t *testing.T) {
	recs := []Record{{EntityID: "a"}, {EntityID: "b"}, {EntityID: "c"}}
	out := ClassifyAll(recs, Thresholds{RiskDays: 1, BreachDays: 2}, testNow)
	assert.Len(t, out, 3)
	for i, c := range out {
		assert.Equal(t, recs[i].EntityID, c.EntityID)
	}
}
