//nolint:testpackage // requires internal access to the collector clock
package monitoring

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by step on every call.
func fakeClock(step time.Duration) func() time.Time {
	t := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func TestCollectorRecord(t *testing.T) {
	var logs bytes.Buffer
	c := NewCollector(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	c.now = fakeClock(10 * time.Millisecond)

	require.NoError(t, c.Record("normalize", 5, func() (int, error) { return 3, nil }))
	boom := errors.New("boom")
	err := c.Record("join", 3, func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	metrics := c.Metrics()
	require.Len(t, metrics, 2)
	assert.Equal(t, StageMetrics{Stage: "normalize", Duration: 10 * time.Millisecond, RowsIn: 5, RowsOut: 3}, metrics[0])
	assert.Equal(t, 2, metrics[0].RowsDropped())
	assert.Equal(t, "boom", metrics[1].Err)

	assert.Equal(t, Summary{Stages: 2, Failed: 1, TotalDuration: 20 * time.Millisecond, RowsDropped: 5}, c.Summary())
	assert.Contains(t, logs.String(), "stage=normalize")
	assert.Contains(t, logs.String(), "rows_out=3")

	c.Reset()
	assert.Empty(t, c.Metrics())
	assert.Equal(t, Summary{}, c.Summary())
}

func TestCollectorGrowingStage(t *testing.T) {
	c := NewCollector(nil)
	require.NoError(t, c.Record("join", 2, func() (int, error) { return 4, nil }))
	assert.Equal(t, -2, c.Metrics()[0].RowsDropped())
	assert.Equal(t, 0, c.Summary().RowsDropped)
}

func TestCollectorMetricsIsCopy(t *testing.T) {
	c := NewCollector(nil)
	require.NoError(t, c.Record("read", 0, func() (int, error) { return 1, nil }))
	m := c.Metrics()
	m[0].Stage = "changed"
	assert.Equal(t, "read", c.Metrics()[0].Stage)
}

func TestPlanBuilder(t *testing.T) {
	plan := NewPlanBuilder().
		Leaf("read", "prices").
		Leaf("read", "rates").
		Then("join", "inner on date").
		Then("report", "table").
		Build()

	assert.Equal(t, 4, plan.StageCount())
	assert.Equal(t, "report: table\n  join: inner on date\n    read: prices\n    read: rates\n", plan.String())

	data, err := plan.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "stage: report")
	assert.Contains(t, string(data), "description: inner on date")

	leaves := NewPlanBuilder().Leaf("read", "a").Leaf("read", "b").Build()
	assert.Equal(t, "plan", leaves.Root.Stage)
	assert.Equal(t, 3, leaves.StageCount())

	empty := NewPlanBuilder().Build()
	assert.Equal(t, 0, empty.StageCount())
	assert.Equal(t, "(empty plan)\n", empty.String())
}
