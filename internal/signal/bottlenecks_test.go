package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankBottlenecks_TieBreakOnMaxWait(t *testing.T) {
	var records []Classified
	// B first in input so ordering cannot come from insertion order.
	for i := 0; i < 5; i++ {
		records = append(records, item("p1", "B", UrgencyOK, 3))
	}
	for i, age := range []int{20, 4, 4, 2, 1} {
		project := "p1"
		if i%2 == 1 {
			project = "p2"
		}
		records = append(records, item(project, "A", UrgencyAtRisk, age))
	}

	rows := RankBottlenecks(records)
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0].ActorLabel)
	assert.Equal(t, 5, rows[0].PendingCount)
	assert.Equal(t, 2, rows[0].ProjectsAffected)
	assert.Equal(t, 20, rows[0].MaxWaitDays)
	assert.Equal(t, 6.2, rows[0].AvgWaitDays)
	assert.Equal(t, HeatHigh, rows[0].Heat)

	assert.Equal(t, "B", rows[1].ActorLabel)
	assert.Equal(t, 1, rows[1].ProjectsAffected)
	assert.Equal(t, 3, rows[1].MaxWaitDays)
	assert.Equal(t, HeatLow, rows[1].Heat)

	again := RankBottlenecks(records)
	assert.Equal(t, rows, again)
}

func TestRankBottlenecks_ExcludesUnresolvedOwners(t *testing.T) {
	rows := RankBottlenecks([]Classified{
		item("p1", UnknownActor, UrgencyBreached, 30),
		item("p1", UnknownUser, UrgencyBreached, 30),
		item("p1", "", UrgencyBreached, 30),
		item("p1", "Ana", UrgencyOK, 1),
	})
	require.Len(t, rows, 1)
	assert.Equal(t, "Ana", rows[0].ActorLabel)
}

func TestRankBottlenecks_HeatDoesNotAffectOrder(t *testing.T) {
	records := []Classified{
		item("p1", "Slow", UrgencyBreached, 30),
		item("p1", "Busy", UrgencyOK, 1),
		item("p2", "Busy", UrgencyOK, 1),
	}
	rows := RankBottlenecks(records)
	require.Len(t, rows, 2)
	assert.Equal(t, "Busy", rows[0].ActorLabel)
	assert.Equal(t, HeatLow, rows[0].Heat)
	assert.Equal(t, HeatHigh, rows[1].Heat)
}

func TestRankBottlenecks_Invariants(t *testing.T) {
	records := []Classified{
		item("p1", "Ana", UrgencyOK, 1),
		item("p1", "Ana", UrgencyOK, 2),
		item("", "Ana", UrgencyOK, 2),
		item("p2", "Ben", UrgencyOK, 8),
	}
	for _, row := range RankBottlenecks(records) {
		assert.LessOrEqual(t, row.ProjectsAffected, row.PendingCount)
	}
	rows := RankBottlenecks(records)
	assert.Equal(t, 1.7, rows[0].AvgWaitDays)
	assert.Equal(t, HeatMedium, rows[1].Heat)
}

func TestHeatFor(t *testing.T) {
	assert.Equal(t, HeatLow, HeatFor(7))
	assert.Equal(t, HeatMedium, HeatFor(8))
	assert.Equal(t, HeatMedium, HeatFor(14))
	assert.Equal(t, HeatHigh, HeatFor(15))
}
