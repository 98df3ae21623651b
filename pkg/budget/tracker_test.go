package budget

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackAccumulatesPerAgent(t *testing.T) {
	tr := NewTracker(Config{Limit: 1000})

	tr.Track("agentX", Usage{Input: 100, Output: 50})
	tr.Track("agentX", Usage{Input: 100, Output: 50})

	got, ok := tr.AgentUsage("agentX")
	require.True(t, ok)
	assert.Equal(t, AgentUsage{Input: 200, Output: 100, Calls: 2}, got)
	assert.GreaterOrEqual(t, tr.TotalUsed(), 300)

	_, ok = tr.AgentUsage("missing")
	assert.False(t, ok)
}

func TestCanProceedAndRemaining(t *testing.T) {
	tr := NewTracker(Config{Limit: 1000})
	tr.Track("a", Usage{Input: 700, Output: 100})

	assert.True(t, tr.CanProceed(200))
	assert.False(t, tr.CanProceed(201))
	assert.Equal(t, 200, tr.Remaining())
	assert.InDelta(t, 80.0, tr.UsagePercent(), 0.001)

	tr.Track("a", Usage{Input: 500})
	assert.Equal(t, 0, tr.Remaining())
}

func TestUnlimited(t *testing.T) {
	tr := NewTracker(Config{})
	tr.Track("a", Usage{Input: 1 << 20})

	assert.True(t, tr.CanProceed(1<<30))
	assert.Equal(t, -1, tr.Remaining())
	assert.Zero(t, tr.UsagePercent())
	assert.False(t, tr.ShouldSummarize())
	assert.Contains(t, tr.String(), "unlimited")
}

func TestThresholds(t *testing.T) {
	tr := NewTracker(Config{Limit: 100, WarningRatio: 0.5, SummarizeRatio: 0.8})

	tr.Track("a", Usage{Input: 49})
	assert.False(t, tr.IsWarningLevel())
	tr.Track("a", Usage{Input: 1})
	assert.True(t, tr.IsWarningLevel())
	assert.False(t, tr.ShouldSummarize())
	tr.Track("a", Usage{Output: 30})
	assert.True(t, tr.ShouldSummarize())
}

func TestTotalNeverDecreases(t *testing.T) {
	tr := NewTracker(Config{})
	tr.Track("a", Usage{Input: 10})
	tr.Track("a", Usage{Input: -5, Output: -5})
	assert.Equal(t, 10, tr.TotalUsed())
}

func TestSnapshotRestoreReset(t *testing.T) {
	tr := NewTracker(Config{Limit: 500})
	tr.Track("a", Usage{Input: 10, Output: 5})
	tr.Track("b", Usage{Input: 1, Output: 1})

	snap := tr.Snapshot()
	assert.Equal(t, 17, snap.Total())

	fresh := NewTracker(Config{Limit: 500})
	fresh.Restore(snap)
	assert.Equal(t, 17, fresh.TotalUsed())
	assert.Equal(t, []string{"a", "b"}, fresh.Agents())

	// Mutating the snapshot does not leak into the tracker.
	snap.Agents["a"] = AgentUsage{Input: 999}
	got, _ := fresh.AgentUsage("a")
	assert.Equal(t, 10, got.Input)

	fresh.Reset()
	assert.Zero(t, fresh.TotalUsed())
	assert.Empty(t, fresh.Agents())
}

func TestConcurrentTrack(t *testing.T) {
	tr := NewTracker(Config{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Track("a", Usage{Input: 2, Output: 1})
		}()
	}
	wg.Wait()

	got, _ := tr.AgentUsage("a")
	assert.Equal(t, 50, got.Calls)
	assert.Equal(t, 150, tr.TotalUsed())
}

func TestEstimator(t *testing.T) {
	e := DefaultEstimator()
	n := e.Count("Two bedroom house on a 30x40 plot facing east.")
	assert.Positive(t, n)
	assert.Less(t, n, 40)
	assert.Equal(t, e.Count("a")+e.Count("b"), e.CountAll("a", "b"))

	var nilEstimator *Estimator
	assert.Equal(t, 2, nilEstimator.Count("12345678"))
}
