package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSortTriggersCanonicalOrder(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	triggers := []Trigger{
		{Station: "B", SourceID: "c01", Time: t0, Statistic: 0.7},
		{Station: "A", SourceID: "c02", Time: t0, Statistic: 0.9},
		{Station: "A", SourceID: "c01", Time: t0, Statistic: 0.6},
		{Station: "A", SourceID: "c01", Time: t0, Statistic: 0.8},
		{Station: "A", SourceID: "c01", Time: t0.Add(-time.Second), Statistic: 0.5},
	}

	SortTriggers(triggers)

	assert.Equal(t, t0.Add(-time.Second), triggers[0].Time)
	assert.InDelta(t, 0.8, triggers[1].Statistic, 0)
	assert.InDelta(t, 0.6, triggers[2].Statistic, 0)
	assert.Equal(t, "c02", triggers[3].SourceID)
	assert.Equal(t, "B", triggers[4].Station)
	assert.True(t, triggers[0].Less(&triggers[1]))
}

func TestCatalogSortAndTriggers(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Catalog{Detections: []Detection{
		{ID: "b", Time: t0.Add(time.Minute), Triggers: []Trigger{{Station: "A", Time: t0.Add(time.Minute)}}},
		{ID: "c", Time: t0, Triggers: []Trigger{{Station: "B", Time: t0}}},
		{ID: "a", Time: t0, Triggers: []Trigger{{Station: "A", Time: t0}}},
	}}

	c.Sort()
	assert.Equal(t, []string{"a", "c", "b"}, []string{c.Detections[0].ID, c.Detections[1].ID, c.Detections[2].ID})

	trig := c.Triggers()
	assert.Len(t, trig, 3)
	assert.Equal(t, "A", trig[0].Station)
	assert.Equal(t, t0.Add(time.Minute), trig[2].Time)

	assert.Len(t, c.Between(t0, t0.Add(time.Second)), 2)
	assert.Zero(t, (*Catalog)(nil).Len())
}
