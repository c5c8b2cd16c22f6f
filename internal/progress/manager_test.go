package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/gridhaven/haven/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CreateAndGet(t *testing.T) {
	m := NewManager()

	tr := m.CreateTracker(Config{OperationID: "op-1", TotalItems: 5, UpdateInterval: time.Hour})
	require.NotNil(t, tr)
	assert.Equal(t, tr, m.GetTracker("op-1"))
	assert.Nil(t, m.GetTracker("missing"))
}

func TestManager_RecreateReplaces(t *testing.T) {
	m := NewManager()

	first := m.CreateTracker(Config{OperationID: "op-1", TotalItems: 5, UpdateInterval: time.Hour})
	second := m.CreateTracker(Config{OperationID: "op-1", TotalItems: 9, UpdateInterval: time.Hour})

	assert.NotEqual(t, first, second)
	assert.Equal(t, second, m.GetTracker("op-1"))
}

func TestManager_ActiveOperationsGauge(t *testing.T) {
	before := testutil.ToFloat64(observability.ActiveOperations)
	m := NewManager()

	tr := m.CreateTracker(Config{OperationID: "gauge-op", UpdateInterval: time.Hour})
	assert.Equal(t, before+1, testutil.ToFloat64(observability.ActiveOperations))

	tr.Start()
	tr.Complete()
	assert.Equal(t, before, testutil.ToFloat64(observability.ActiveOperations))
}

func TestManager_ActiveOperationsGauge_ReplacementCountsOnce(t *testing.T) {
	before := testutil.ToFloat64(observability.ActiveOperations)
	m := NewManager()

	first := m.CreateTracker(Config{OperationID: "gauge-op-2", UpdateInterval: time.Hour})
	first.Start()
	second := m.CreateTracker(Config{OperationID: "gauge-op-2", UpdateInterval: time.Hour})
	assert.Equal(t, before+1, testutil.ToFloat64(observability.ActiveOperations))

	// completing the replaced tracker must not decrement again
	first.Complete()
	assert.Equal(t, before+1, testutil.ToFloat64(observability.ActiveOperations))

	second.Start()
	second.Cancel()
	assert.Equal(t, before, testutil.ToFloat64(observability.ActiveOperations))
}

func TestManager_GlobalListenerReceivesUpdates(t *testing.T) {
	m := NewManager()

	var mu sync.Mutex
	var ids []string
	m.AddGlobalListener(func(u Update) {
		mu.Lock()
		ids = append(ids, u.OperationID)
		mu.Unlock()
	})

	tr := m.CreateTracker(Config{OperationID: "op-1", TotalItems: 2, UpdateInterval: time.Hour})
	tr.Start()
	tr.UpdateProgress(1)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, ids)
	for _, id := range ids {
		assert.Equal(t, "op-1", id)
	}
}

func TestManager_AutoRemovesFinishedTrackers(t *testing.T) {
	m := NewManager()
	m.removeDelay = 10 * time.Millisecond

	tr := m.CreateTracker(Config{OperationID: "op-gc", TotalItems: 1, UpdateInterval: time.Hour})
	tr.Start()
	tr.Complete()

	require.Eventually(t, func() bool {
		return m.GetTracker("op-gc") == nil
	}, time.Second, 5*time.Millisecond)
}

func TestManager_RemoveSparesReplacement(t *testing.T) {
	m := NewManager()
	m.removeDelay = 10 * time.Millisecond

	first := m.CreateTracker(Config{OperationID: "op-1", TotalItems: 1, UpdateInterval: time.Hour})
	first.Start()
	first.Complete()

	// Re-created before the GC delay fires; the replacement must survive
	second := m.CreateTracker(Config{OperationID: "op-1", TotalItems: 1, UpdateInterval: time.Hour})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, second, m.GetTracker("op-1"))
}

func TestManager_Summary(t *testing.T) {
	m := NewManager()
	m.removeDelay = time.Hour // keep finished trackers visible

	running := m.CreateTracker(Config{OperationID: "a", TotalItems: 1, UpdateInterval: time.Hour})
	running.Start()

	done := m.CreateTracker(Config{OperationID: "b", TotalItems: 1, UpdateInterval: time.Hour})
	done.Start()
	done.Complete()

	failed := m.CreateTracker(Config{OperationID: "c", TotalItems: 1, UpdateInterval: time.Hour})
	failed.Start()
	failed.Fail(assert.AnError)

	s := m.GetProgressSummary()
	assert.Equal(t, 1, s.Active)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 3, s.Total)
}

func TestManager_PauseAllOnlyAffectsInProgress(t *testing.T) {
	m := NewManager()
	m.removeDelay = time.Hour

	running := m.CreateTracker(Config{OperationID: "running", TotalItems: 1, UpdateInterval: time.Hour})
	running.Start()

	idle := m.CreateTracker(Config{OperationID: "idle", TotalItems: 1, UpdateInterval: time.Hour})

	done := m.CreateTracker(Config{OperationID: "done", TotalItems: 1, UpdateInterval: time.Hour})
	done.Start()
	done.Complete()

	m.PauseAllOperations()

	assert.Equal(t, StatusPaused, running.Status())
	assert.Equal(t, StatusNotStarted, idle.Status())
	assert.Equal(t, StatusCompleted, done.Status())
}

func TestManager_ResumeAllOnlyAffectsPaused(t *testing.T) {
	m := NewManager()
	m.removeDelay = time.Hour

	paused := m.CreateTracker(Config{OperationID: "paused", TotalItems: 1, UpdateInterval: time.Hour})
	paused.Start()
	paused.Pause()

	idle := m.CreateTracker(Config{OperationID: "idle", TotalItems: 1, UpdateInterval: time.Hour})

	m.ResumeAllOperations()

	assert.Equal(t, StatusInProgress, paused.Status())
	assert.Equal(t, StatusNotStarted, idle.Status())
}

func TestManager_CancelAll(t *testing.T) {
	m := NewManager()
	m.removeDelay = time.Hour

	a := m.CreateTracker(Config{OperationID: "a", TotalItems: 1, UpdateInterval: time.Hour})
	a.Start()
	b := m.CreateTracker(Config{OperationID: "b", TotalItems: 1, UpdateInterval: time.Hour})
	b.Start()
	b.Pause()

	m.CancelAllOperations()

	assert.Equal(t, StatusCancelled, a.Status())
	assert.Equal(t, StatusCancelled, b.Status())
}

func TestManager_Snapshot(t *testing.T) {
	m := NewManager()
	m.removeDelay = time.Hour

	tr := m.CreateTracker(Config{OperationID: "snap", TotalItems: 4, UpdateInterval: time.Hour})
	tr.Start()
	tr.UpdateProgress(2)

	updates := m.Snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, "snap", updates[0].OperationID)
	assert.InDelta(t, 50.0, updates[0].Progress, 0.001)
}
