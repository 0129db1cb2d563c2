package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorTimings(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpPlan, 100*time.Millisecond)
	c.RecordTiming(OpPlan, 300*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.Plan)
	assert.Equal(t, int64(2), snap.Plan.Count)
	assert.Equal(t, int64(400), snap.Plan.TotalTimeMs)
	assert.Equal(t, 200.0, snap.Plan.AvgTimeMs)
	assert.Equal(t, int64(100), snap.Plan.MinTimeMs)
	assert.Equal(t, int64(300), snap.Plan.MaxTimeMs)
}

func TestCollectorFailuresOnly(t *testing.T) {
	c := NewCollector()
	c.RecordFailure(OpApply)

	snap := c.Snapshot()
	require.NotNil(t, snap.Apply)
	assert.Equal(t, int64(0), snap.Apply.Count)
	assert.Equal(t, int64(1), snap.Apply.Failures)
	assert.Equal(t, int64(0), snap.Apply.MinTimeMs)
}

func TestCollectorEmptyOpsAreNil(t *testing.T) {
	c := NewCollector()
	snap := c.Snapshot()

	assert.Nil(t, snap.Plan)
	assert.Nil(t, snap.Refine)
	assert.Nil(t, snap.DBQuery)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}
