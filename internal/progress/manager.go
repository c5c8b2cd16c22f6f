package progress

import (
	"sync"
	"time"

	"github.com/gridhaven/haven/internal/logging"
	"github.com/gridhaven/haven/internal/observability"
	"go.uber.org/zap"
)

// defaultRemoveDelay is how long a finished tracker stays queryable before
// the manager garbage-collects it
const defaultRemoveDelay = time.Second

// Summary aggregates tracker counts across the registry
type Summary struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// Manager is a registry of trackers keyed by operation id. It fans updates
// out to global listeners and removes trackers shortly after they finish so
// long-running processes stay bounded.
type Manager struct {
	mu              sync.RWMutex
	trackers        map[string]*Tracker
	globalListeners []Listener
	removeDelay     time.Duration
	logger          *logging.SafeLogger
}

// NewManager creates an empty registry
func NewManager() *Manager {
	return &Manager{
		trackers:    make(map[string]*Tracker),
		removeDelay: defaultRemoveDelay,
		logger:      logging.Logger,
	}
}

// CreateTracker registers a tracker for config. An existing tracker with the
// same operation id is replaced.
func (m *Manager) CreateTracker(cfg Config) *Tracker {
	tracker := NewTracker(cfg)
	id := tracker.OperationID()

	m.mu.Lock()
	if old, ok := m.trackers[id]; ok {
		if !old.Status().Terminal() {
			observability.ActiveOperations.Dec()
		}
		old.dispose()
		m.logger.Debug("replacing existing tracker", zap.String("operation_id", id))
	}
	m.trackers[id] = tracker
	m.mu.Unlock()

	observability.ActiveOperations.Inc()
	tracker.Subscribe(func(u Update) {
		m.forward(u)
		if u.Status.Terminal() {
			// a tracker replaced while live was already decremented
			m.mu.RLock()
			registered := m.trackers[id] == tracker
			m.mu.RUnlock()
			if registered {
				observability.ActiveOperations.Dec()
			}
			time.AfterFunc(m.removeDelay, func() {
				m.remove(id, tracker)
			})
		}
	})

	return tracker
}

// GetTracker returns the tracker for an operation id, or nil
func (m *Manager) GetTracker(id string) *Tracker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trackers[id]
}

// AddGlobalListener registers a listener receiving every tracker's updates
func (m *Manager) AddGlobalListener(l Listener) {
	m.mu.Lock()
	m.globalListeners = append(m.globalListeners, l)
	m.mu.Unlock()
}

// forward re-emits an update to all global listeners
func (m *Manager) forward(u Update) {
	m.mu.RLock()
	listeners := make([]Listener, len(m.globalListeners))
	copy(listeners, m.globalListeners)
	m.mu.RUnlock()

	for _, l := range listeners {
		l(u)
	}
}

// remove drops a tracker if it is still the registered one for its id.
// A replacement registered in the meantime is left alone.
func (m *Manager) remove(id string, tracker *Tracker) {
	m.mu.Lock()
	if current, ok := m.trackers[id]; ok && current == tracker {
		delete(m.trackers, id)
	}
	m.mu.Unlock()
}

// Snapshot returns the current update of every registered tracker
func (m *Manager) Snapshot() []Update {
	m.mu.RLock()
	trackers := make([]*Tracker, 0, len(m.trackers))
	for _, t := range m.trackers {
		trackers = append(trackers, t)
	}
	m.mu.RUnlock()

	updates := make([]Update, 0, len(trackers))
	for _, t := range trackers {
		updates = append(updates, t.Snapshot())
	}
	return updates
}

// GetProgressSummary counts trackers by lifecycle state
func (m *Manager) GetProgressSummary() Summary {
	m.mu.RLock()
	trackers := make([]*Tracker, 0, len(m.trackers))
	for _, t := range m.trackers {
		trackers = append(trackers, t)
	}
	m.mu.RUnlock()

	var s Summary
	for _, t := range trackers {
		s.Total++
		switch t.Status() {
		case StatusInProgress, StatusPaused, StatusNotStarted:
			s.Active++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// CancelAllOperations cancels every non-terminal tracker
func (m *Manager) CancelAllOperations() {
	for _, t := range m.active() {
		if !t.Status().Terminal() {
			t.Cancel()
		}
	}
}

// PauseAllOperations pauses trackers that are IN_PROGRESS; others are left as is
func (m *Manager) PauseAllOperations() {
	for _, t := range m.active() {
		if t.Status() == StatusInProgress {
			t.Pause()
		}
	}
}

// ResumeAllOperations resumes trackers that are PAUSED
func (m *Manager) ResumeAllOperations() {
	for _, t := range m.active() {
		if t.Status() == StatusPaused {
			t.Resume()
		}
	}
}

// active returns the registered trackers without holding the lock during
// the subsequent state transitions
func (m *Manager) active() []*Tracker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trackers := make([]*Tracker, 0, len(m.trackers))
	for _, t := range m.trackers {
		trackers = append(trackers, t)
	}
	return trackers
}
