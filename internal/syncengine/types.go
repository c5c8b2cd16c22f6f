package syncengine

import (
	"context"
	"time"

	"github.com/gridhaven/haven/internal/progress"
)

// ContentItem is one candidate unit of content considered for sync
type ContentItem struct {
	Name      string   `json:"name"`
	Path      string   `json:"path"`
	SizeBytes int64    `json:"size_bytes"`
	Rating    float64  `json:"rating,omitempty"`
	Year      int      `json:"year,omitempty"`
	Genres    []string `json:"genres,omitempty"`
	Folder    string   `json:"folder,omitempty"`
	Version   string   `json:"version,omitempty"`
}

// Stats is what a handler reports back after one sync run
type Stats struct {
	ItemsProcessed int   `json:"items_processed"`
	ItemsSkipped   int   `json:"items_skipped"`
	TotalBytes     int64 `json:"total_bytes"`
}

// Handler syncs one content type into local storage. Handlers own their
// size-budget accounting and filter logic; the engine owns single-flight,
// retries, timing and result history.
type Handler interface {
	Name() string
	Sync(ctx context.Context, tracker *progress.Tracker) (Stats, error)
}

// SyncResult is the immutable record of one finished sync run
type SyncResult struct {
	ContentType    string        `json:"content_type"`
	Success        bool          `json:"success"`
	ItemsProcessed int           `json:"items_processed"`
	TotalSize      int64         `json:"total_size"`
	Duration       time.Duration `json:"duration_ms"`
	Errors         []string      `json:"errors,omitempty"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// EngineStatus is a point-in-time snapshot of the engine
type EngineStatus struct {
	IsRunning          bool         `json:"is_running"`
	CurrentContentType string       `json:"current_content_type,omitempty"`
	StartTime          time.Time    `json:"start_time,omitempty"`
	LastSync           time.Time    `json:"last_sync,omitempty"`
	RegisteredTypes    []string     `json:"registered_types"`
	Results            []SyncResult `json:"results"`
}
