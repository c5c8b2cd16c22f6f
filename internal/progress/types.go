package progress

import (
	"time"
)

// Status is the lifecycle state of a tracked operation
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusPaused     Status = "PAUSED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether the status is absorbing
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// PhaseStatus is the state of a single weighted phase
type PhaseStatus string

const (
	PhasePending    PhaseStatus = "PENDING"
	PhaseInProgress PhaseStatus = "IN_PROGRESS"
	PhaseCompleted  PhaseStatus = "COMPLETED"
	PhaseFailed     PhaseStatus = "FAILED"
	PhaseCancelled  PhaseStatus = "CANCELLED"
)

// PhaseConfig declares one weighted phase of an operation
type PhaseConfig struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Phase is the live state of a configured phase
type Phase struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Weight   float64     `json:"weight"`
	Status   PhaseStatus `json:"status"`
	Progress float64     `json:"progress"`
	Error    string      `json:"error,omitempty"`
}

// Config is the immutable input of a tracker
type Config struct {
	OperationID    string        `json:"operation_id"`
	TotalItems     int64         `json:"total_items"`
	TotalBytes     int64         `json:"total_bytes"`
	Phases         []PhaseConfig `json:"phases,omitempty"`
	UpdateInterval time.Duration `json:"update_interval"`
}

// Metrics carries derived throughput and ETA figures. Rates are recomputed
// from a bounded sliding window of samples, never accumulated.
type Metrics struct {
	TotalItems             int64         `json:"total_items"`
	CompletedItems         int64         `json:"completed_items"`
	FailedItems            int64         `json:"failed_items"`
	SkippedItems           int64         `json:"skipped_items"`
	TotalBytes             int64         `json:"total_bytes"`
	ProcessedBytes         int64         `json:"processed_bytes"`
	ItemsPerSecond         float64       `json:"items_per_second"`
	BytesPerSecond         float64       `json:"bytes_per_second"`
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining_ms"`
	Elapsed                time.Duration `json:"elapsed_ms"`
}

// Update is the repeatedly emitted snapshot of a tracked operation
type Update struct {
	OperationID  string    `json:"operation_id"`
	Progress     float64   `json:"progress"`
	Status       Status    `json:"status"`
	CurrentPhase string    `json:"current_phase,omitempty"`
	Phases       []Phase   `json:"phases,omitempty"`
	Metrics      Metrics   `json:"metrics"`
	CurrentItem  string    `json:"current_item,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Listener receives emitted updates
type Listener func(Update)
