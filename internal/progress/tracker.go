package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gridhaven/haven/internal/logging"
	"go.uber.org/zap"
)

const (
	defaultUpdateInterval = time.Second
	rateWindowSize        = 10
)

// sample is one point of the sliding rate window
type sample struct {
	at             time.Time
	completedItems int64
	processedBytes int64
}

// Tracker is the per-operation progress state machine. All methods are safe
// for concurrent use; calls after a terminal state are no-ops.
type Tracker struct {
	mu sync.RWMutex

	config       Config
	status       Status
	phases       []Phase
	currentPhase string
	currentItem  string

	completedItems int64
	failedItems    int64
	skippedItems   int64
	processedBytes int64

	// lastProgress keeps overall progress monotone while IN_PROGRESS
	lastProgress float64

	window    []sample
	startTime time.Time
	endTime   time.Time

	listeners []Listener

	heartbeatStop chan struct{}
	disposeOnce   sync.Once
	logger        *logging.SafeLogger
}

// NewTracker creates a tracker from config. A missing operation id gets a
// generated one; a missing update interval defaults to one second.
func NewTracker(cfg Config) *Tracker {
	if cfg.OperationID == "" {
		cfg.OperationID = uuid.New().String()
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = defaultUpdateInterval
	}

	phases := make([]Phase, 0, len(cfg.Phases))
	for _, pc := range cfg.Phases {
		phases = append(phases, Phase{
			ID:     pc.ID,
			Name:   pc.Name,
			Weight: pc.Weight,
			Status: PhasePending,
		})
	}

	return &Tracker{
		config:        cfg,
		status:        StatusNotStarted,
		phases:        phases,
		heartbeatStop: make(chan struct{}),
		logger:        logging.Logger.With(zap.String("operation_id", cfg.OperationID)),
	}
}

// OperationID returns the tracker's operation id
func (t *Tracker) OperationID() string {
	return t.config.OperationID
}

// Status returns the current lifecycle status
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Subscribe registers a listener for emitted updates
func (t *Tracker) Subscribe(l Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()
}

// Start transitions to IN_PROGRESS. Valid from NOT_STARTED (records the start
// time and launches the heartbeat) and from PAUSED (resume); no-op otherwise.
func (t *Tracker) Start() {
	t.mu.Lock()
	switch t.status {
	case StatusNotStarted:
		t.status = StatusInProgress
		t.startTime = time.Now()
		t.window = append(t.window, sample{at: t.startTime})
		go t.heartbeat()
	case StatusPaused:
		t.status = StatusInProgress
	default:
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.emit()
}

// Pause suspends progress reporting. Only valid from IN_PROGRESS.
func (t *Tracker) Pause() {
	t.mu.Lock()
	if t.status != StatusInProgress {
		t.mu.Unlock()
		return
	}
	t.status = StatusPaused
	t.mu.Unlock()
	t.emit()
}

// Resume continues a paused operation
func (t *Tracker) Resume() {
	t.Start()
}

// UpdateProgress records completed items and optional processed bytes,
// recomputing overall progress, rates and ETA. No-op unless IN_PROGRESS.
func (t *Tracker) UpdateProgress(completedItems int64, processedBytes ...int64) {
	t.mu.Lock()
	if t.status != StatusInProgress {
		t.mu.Unlock()
		return
	}

	t.completedItems = completedItems
	if len(processedBytes) > 0 {
		t.processedBytes = processedBytes[0]
	}

	t.window = append(t.window, sample{
		at:             time.Now(),
		completedItems: t.completedItems,
		processedBytes: t.processedBytes,
	})
	if len(t.window) > rateWindowSize {
		t.window = t.window[len(t.window)-rateWindowSize:]
	}
	t.mu.Unlock()
	t.emit()
}

// MarkItemFailed counts an item as failed
func (t *Tracker) MarkItemFailed() {
	t.mu.Lock()
	if t.status == StatusInProgress {
		t.failedItems++
	}
	t.mu.Unlock()
}

// MarkItemSkipped counts an item as skipped
func (t *Tracker) MarkItemSkipped() {
	t.mu.Lock()
	if t.status == StatusInProgress {
		t.skippedItems++
	}
	t.mu.Unlock()
}

// SetCurrentItem records the item currently being processed
func (t *Tracker) SetCurrentItem(item string) {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	t.currentItem = item
	t.mu.Unlock()
}

// StartPhase marks the phase with the given id IN_PROGRESS. A previously
// active phase is implicitly completed so only one phase is ever current.
func (t *Tracker) StartPhase(id string) {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	for i := range t.phases {
		if t.phases[i].Status == PhaseInProgress {
			t.phases[i].Status = PhaseCompleted
			t.phases[i].Progress = 100
		}
	}
	for i := range t.phases {
		if t.phases[i].ID == id {
			t.phases[i].Status = PhaseInProgress
			t.currentPhase = id
			break
		}
	}
	t.mu.Unlock()
	t.emit()
}

// UpdatePhaseProgress sets a phase's progress percentage, clamped to [0,100]
func (t *Tracker) UpdatePhaseProgress(id string, pct float64) {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	for i := range t.phases {
		if t.phases[i].ID == id && t.phases[i].Status == PhaseInProgress {
			t.phases[i].Progress = clamp(pct)
			break
		}
	}
	t.mu.Unlock()
	t.emit()
}

// CompletePhase marks a phase completed at 100%
func (t *Tracker) CompletePhase(id string) {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	for i := range t.phases {
		if t.phases[i].ID == id {
			t.phases[i].Status = PhaseCompleted
			t.phases[i].Progress = 100
			if t.currentPhase == id {
				t.currentPhase = ""
			}
			break
		}
	}
	t.mu.Unlock()
	t.emit()
}

// FailPhase marks a phase failed with an error message
func (t *Tracker) FailPhase(id string, err error) {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	for i := range t.phases {
		if t.phases[i].ID == id {
			t.phases[i].Status = PhaseFailed
			if err != nil {
				t.phases[i].Error = err.Error()
			}
			if t.currentPhase == id {
				t.currentPhase = ""
			}
			break
		}
	}
	t.mu.Unlock()
	t.emit()
}

// Complete finishes the operation successfully, completing any active phases
func (t *Tracker) Complete() {
	t.finish(StatusCompleted, PhaseCompleted, nil)
}

// Fail finishes the operation with an error, failing any active phases
func (t *Tracker) Fail(err error) {
	t.finish(StatusFailed, PhaseFailed, err)
}

// Cancel aborts the operation, cancelling any in-progress phases. Cancelling
// stops reporting; it does not abort in-flight work.
func (t *Tracker) Cancel() {
	t.finish(StatusCancelled, PhaseCancelled, nil)
}

// finish moves the tracker to a terminal state, forces still-active phases to
// the matching phase state, emits a final update and releases the heartbeat.
// Idempotent: a second terminal transition is a no-op.
func (t *Tracker) finish(status Status, phaseStatus PhaseStatus, err error) {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	t.status = status
	t.endTime = time.Now()

	for i := range t.phases {
		if t.phases[i].Status == PhaseInProgress {
			t.phases[i].Status = phaseStatus
			if phaseStatus == PhaseCompleted {
				t.phases[i].Progress = 100
			}
			if err != nil && phaseStatus == PhaseFailed {
				t.phases[i].Error = err.Error()
			}
		}
	}
	t.currentPhase = ""
	t.mu.Unlock()

	t.emit()
	t.dispose()

	switch status {
	case StatusFailed:
		t.logger.Error("operation failed", zap.Error(err))
	case StatusCancelled:
		t.logger.Warn("operation cancelled")
	default:
		t.logger.Debug("operation completed")
	}
}

// dispose stops the heartbeat, exactly once
func (t *Tracker) dispose() {
	t.disposeOnce.Do(func() {
		close(t.heartbeatStop)
	})
}

// heartbeat re-emits the current snapshot every UpdateInterval while the
// operation is IN_PROGRESS, so slow phases still produce updates
func (t *Tracker) heartbeat() {
	ticker := time.NewTicker(t.config.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.heartbeatStop:
			return
		case <-ticker.C:
			if t.Status() == StatusInProgress {
				t.emit()
			}
		}
	}
}

// Snapshot returns the current update without emitting it
func (t *Tracker) Snapshot() Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// snapshotLocked builds an Update; caller holds the lock
func (t *Tracker) snapshotLocked() Update {
	overall := t.overallLocked()

	// Progress never regresses while the operation is live
	if t.status == StatusInProgress || t.status == StatusPaused {
		if overall < t.lastProgress {
			overall = t.lastProgress
		}
		t.lastProgress = overall
	}

	phases := make([]Phase, len(t.phases))
	copy(phases, t.phases)

	return Update{
		OperationID:  t.config.OperationID,
		Progress:     overall,
		Status:       t.status,
		CurrentPhase: t.currentPhase,
		Phases:       phases,
		Metrics:      t.metricsLocked(),
		CurrentItem:  t.currentItem,
		Timestamp:    time.Now(),
	}
}

// overallLocked computes overall progress: the phase-weighted average when
// phases exist, otherwise the item ratio; clamped to [0,100]
func (t *Tracker) overallLocked() float64 {
	if len(t.phases) > 0 {
		var weighted, totalWeight float64
		for _, p := range t.phases {
			weighted += p.Progress * p.Weight
			totalWeight += p.Weight
		}
		if totalWeight == 0 {
			return 0
		}
		return clamp(weighted / totalWeight)
	}

	if t.config.TotalItems <= 0 {
		return 0
	}
	return clamp(float64(t.completedItems) / float64(t.config.TotalItems) * 100)
}

// metricsLocked derives rates from the oldest and newest window samples
func (t *Tracker) metricsLocked() Metrics {
	m := Metrics{
		TotalItems:     t.config.TotalItems,
		CompletedItems: t.completedItems,
		FailedItems:    t.failedItems,
		SkippedItems:   t.skippedItems,
		TotalBytes:     t.config.TotalBytes,
		ProcessedBytes: t.processedBytes,
	}

	if !t.startTime.IsZero() {
		end := t.endTime
		if end.IsZero() {
			end = time.Now()
		}
		m.Elapsed = end.Sub(t.startTime)
	}

	if len(t.window) >= 2 {
		oldest, newest := t.window[0], t.window[len(t.window)-1]
		seconds := newest.at.Sub(oldest.at).Seconds()
		if seconds > 0 {
			m.ItemsPerSecond = float64(newest.completedItems-oldest.completedItems) / seconds
			m.BytesPerSecond = float64(newest.processedBytes-oldest.processedBytes) / seconds
		}
	}

	if m.ItemsPerSecond > 0 && t.config.TotalItems > t.completedItems {
		remaining := float64(t.config.TotalItems - t.completedItems)
		m.EstimatedTimeRemaining = time.Duration(remaining / m.ItemsPerSecond * float64(time.Second))
	}

	return m
}

// emit sends the current snapshot to all listeners
func (t *Tracker) emit() {
	t.mu.Lock()
	update := t.snapshotLocked()
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, l := range listeners {
		l(update)
	}
}

func clamp(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
