package syncengine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gridhaven/haven/internal/async"
	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/logging"
	"github.com/gridhaven/haven/internal/notify"
	"github.com/gridhaven/haven/internal/observability"
	"github.com/gridhaven/haven/internal/progress"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// resultHistorySize bounds the sync result ring buffer
const resultHistorySize = 10

// Engine runs at most one content sync at a time across all content types.
// A concurrent SyncContentType call is skipped, never queued; the guard is
// intentionally engine-wide so the storage volume and the upstream source are
// never hit by two syncs at once.
type Engine struct {
	cfg      *config.Config
	progress *progress.Manager
	notifier *notify.Notifier
	logger   *logging.SafeLogger

	mu          sync.Mutex
	running     bool
	currentType string
	startTime   time.Time
	lastSync    time.Time
	results     []SyncResult
	handlers    map[string]Handler
}

// New creates an engine bound to a config, progress manager and notifier
func New(cfg *config.Config, pm *progress.Manager, notifier *notify.Notifier) *Engine {
	return &Engine{
		cfg:      cfg,
		progress: pm,
		notifier: notifier,
		logger:   logging.Logger,
		handlers: make(map[string]Handler),
	}
}

// Register adds a content handler. A handler for the same name is replaced.
func (e *Engine) Register(h Handler) {
	e.mu.Lock()
	e.handlers[h.Name()] = h
	e.mu.Unlock()
}

// Handler returns the registered handler for a content type, or nil
func (e *Engine) Handler(name string) Handler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handlers[name]
}

// RegisteredTypes returns the content type names in sorted order
func (e *Engine) RegisteredTypes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SyncContentType runs one sync for the named content type. Returns
// (false, nil) without touching the handler when another sync is in flight,
// and (true, err) when the sync ran, err reflecting the handler outcome.
// An unregistered content type is an error.
func (e *Engine) SyncContentType(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	handler, ok := e.handlers[name]
	if !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("unknown content type %q", name)
	}
	if e.running {
		current := e.currentType
		e.mu.Unlock()
		e.logger.Warn("sync skipped, engine busy",
			zap.String("content_type", name),
			zap.String("running_content_type", current))
		return false, nil
	}
	e.running = true
	e.currentType = name
	e.startTime = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.currentType = ""
		e.lastSync = time.Now()
		e.mu.Unlock()
	}()

	result := e.runSync(ctx, name, handler)

	e.mu.Lock()
	e.results = append(e.results, result)
	if len(e.results) > resultHistorySize {
		e.results = e.results[len(e.results)-resultHistorySize:]
	}
	e.mu.Unlock()

	if !result.Success {
		return true, fmt.Errorf("sync of %s failed: %s", name, result.Errors[0])
	}
	return true, nil
}

// runSync executes the handler under monitoring and builds the SyncResult
func (e *Engine) runSync(ctx context.Context, name string, handler Handler) SyncResult {
	ctx, span := observability.StartSpan(ctx, "sync."+name)
	defer span.End()
	span.SetAttributes(attribute.String("content_type", name))

	operationID := fmt.Sprintf("sync-%s-%s", name, uuid.NewString())
	tracker := e.progress.CreateTracker(progress.Config{
		OperationID:    operationID,
		UpdateInterval: time.Second,
	})
	tracker.Start()

	e.notifier.Send(notify.Event{
		ContentType: name,
		Success:     true,
		Timestamp:   time.Now().UTC(),
		Message:     "sync started",
	})
	e.logger.Info("sync started",
		zap.String("content_type", name),
		zap.String("operation_id", operationID))

	start := time.Now()
	res := async.ExecuteWithMonitoring(ctx, "sync-"+name, func(ctx context.Context) (Stats, error) {
		return handler.Sync(ctx, tracker)
	}, async.MonitorConfig{
		Timeout:           e.cfg.Sync.TimeoutDuration,
		Retries:           e.cfg.Sync.Retries,
		RetryDelay:        e.cfg.Sync.RetryDelayDuration,
		BackoffMultiplier: 2,
		OperationID:       operationID,
	}, e.logger)
	duration := time.Since(start)

	result := SyncResult{
		ContentType:    name,
		Success:        res.Success,
		ItemsProcessed: res.Data.ItemsProcessed,
		TotalSize:      res.Data.TotalBytes,
		Duration:       duration,
		FinishedAt:     time.Now().UTC(),
	}

	if res.Success {
		tracker.Complete()
		observability.SyncOperations.WithLabelValues(name, "success").Inc()
		observability.SyncBytes.WithLabelValues(name).Add(float64(res.Data.TotalBytes))
		e.logger.Info("sync completed",
			zap.String("content_type", name),
			zap.Int("items", res.Data.ItemsProcessed),
			zap.Int64("bytes", res.Data.TotalBytes),
			zap.Duration("duration", duration))
	} else {
		result.Errors = []string{res.Error.Message}
		tracker.Fail(res.Error)
		span.RecordError(res.Error)
		observability.SyncOperations.WithLabelValues(name, "failure").Inc()
		e.logger.Error("sync failed",
			zap.String("content_type", name),
			zap.Duration("duration", duration),
			zap.Error(res.Error))
	}
	observability.SyncDuration.WithLabelValues(name).Observe(duration.Seconds())

	e.notifier.Send(notify.SyncEvent(name, result.Success, duration))
	return result
}

// SyncAll syncs every registered content type sequentially with a cool-down
// between them. A busy engine makes the whole call a no-op returning an empty
// map; syncs never run in parallel with each other.
func (e *Engine) SyncAll(ctx context.Context) map[string]SyncResult {
	results := make(map[string]SyncResult)

	e.mu.Lock()
	busy := e.running
	e.mu.Unlock()
	if busy {
		e.logger.Warn("sync-all skipped, engine busy")
		return results
	}

	cooldown := e.cfg.Sync.CooldownDuration
	types := e.RegisteredTypes()

	for i, name := range types {
		if i > 0 && cooldown > 0 {
			select {
			case <-time.After(cooldown):
			case <-ctx.Done():
				e.logger.Warn("sync-all cancelled during cool-down", zap.Error(ctx.Err()))
				return results
			}
		}

		ran, err := e.SyncContentType(ctx, name)
		if !ran {
			continue
		}
		if last, ok := e.lastResult(name); ok {
			results[name] = last
		}
		if err != nil {
			// one content type failing does not abort the rest
			e.logger.Warn("continuing sync-all after failure",
				zap.String("content_type", name),
				zap.Error(err))
		}
	}
	return results
}

// lastResult finds the most recent result for a content type
func (e *Engine) lastResult(name string) (SyncResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.results) - 1; i >= 0; i-- {
		if e.results[i].ContentType == name {
			return e.results[i], true
		}
	}
	return SyncResult{}, false
}

// Status returns a point-in-time snapshot of the engine, newest result first
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	results := make([]SyncResult, len(e.results))
	for i, r := range e.results {
		results[len(e.results)-1-i] = r
	}

	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	return EngineStatus{
		IsRunning:          e.running,
		CurrentContentType: e.currentType,
		StartTime:          e.startTime,
		LastSync:           e.lastSync,
		RegisteredTypes:    names,
		Results:            results,
	}
}
