package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gridhaven/haven/internal/async"
	"github.com/gridhaven/haven/internal/logging"
	"github.com/gridhaven/haven/internal/observability"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Handler is a single scheduled task invocation
type Handler func(ctx context.Context) error

// FailureNotifier is called when a task invocation exhausts its retries
type FailureNotifier func(taskID, taskName string, err error)

// TaskOptions configure one scheduled task
type TaskOptions struct {
	Name              string
	EnableHealthCheck bool
	RetryOnFailure    bool
	MaxRetries        int
	RetryDelay        time.Duration
	NotifyOnFailure   bool
}

// TaskHealth is the per-task run accounting exposed to health checks.
// Skipped ticks are counted separately and do not mark a task unhealthy.
type TaskHealth struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	LastRun             time.Time `json:"last_run"`
	NextRun             time.Time `json:"next_run"`
	RunsSucceeded       int64     `json:"runs_succeeded"`
	RunsFailed          int64     `json:"runs_failed"`
	RunsSkipped         int64     `json:"runs_skipped"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	Healthy             bool      `json:"healthy"`
}

// task is one registered scheduled task and its trigger loop state
type task struct {
	id       string
	opts     TaskOptions
	schedule cron.Schedule
	handler  Handler
	cancel   context.CancelFunc
	done     chan struct{}

	mu      sync.Mutex
	running bool
	health  TaskHealth
}

// Scheduler maps task ids to cron-triggered handler invocations with
// at-most-one-concurrent execution per task id
type Scheduler struct {
	mu        sync.Mutex
	tasks     map[string]*task
	destroyed bool
	notifier  FailureNotifier
	logger    *logging.SafeLogger
}

// New creates a scheduler. The notifier may be nil.
func New(notifier FailureNotifier) *Scheduler {
	return &Scheduler{
		tasks:    make(map[string]*task),
		notifier: notifier,
		logger:   logging.Logger,
	}
}

// Schedule registers a task under id with a cron trigger expression.
// A malformed expression or duplicate id is rejected with an error.
func (s *Scheduler) Schedule(id, cronExpr string, handler Handler, opts TaskOptions) error {
	if id == "" {
		return fmt.Errorf("task id is required")
	}
	if handler == nil {
		return fmt.Errorf("task %s: handler is required", id)
	}

	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return fmt.Errorf("task %s: invalid cron expression %q: %w", id, cronExpr, err)
	}
	if opts.Name == "" {
		opts.Name = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return fmt.Errorf("task %s: scheduler already destroyed", id)
	}
	if _, exists := s.tasks[id]; exists {
		return fmt.Errorf("task %s: already scheduled", id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:       id,
		opts:     opts,
		schedule: schedule,
		handler:  handler,
		cancel:   cancel,
		done:     make(chan struct{}),
		health:   TaskHealth{ID: id, Name: opts.Name, Healthy: true},
	}
	s.tasks[id] = t

	go s.runLoop(ctx, t)

	s.logger.Info("task scheduled",
		zap.String("task_id", id),
		zap.String("task_name", opts.Name),
		zap.String("cron", cronExpr))

	return nil
}

// runLoop sleeps until each next trigger and fires ticks. Ticks run in their
// own goroutine so a slow invocation never blocks the trigger clock; an
// overlapping tick is skipped instead.
func (s *Scheduler) runLoop(ctx context.Context, t *task) {
	defer close(t.done)

	for {
		next := t.schedule.Next(time.Now())

		t.mu.Lock()
		t.health.NextRun = next
		t.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			go s.tick(ctx, t)
		}
	}
}

// tick runs one trigger of a task, honoring the per-task single-flight guard
func (s *Scheduler) tick(ctx context.Context, t *task) {
	t.mu.Lock()
	if t.running {
		t.health.RunsSkipped++
		t.mu.Unlock()
		s.logger.Warn("skipping tick, previous invocation still running",
			zap.String("task_id", t.id))
		observability.ScheduledTicks.WithLabelValues(t.id, "skipped").Inc()
		return
	}
	t.running = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	start := time.Now()
	var err error

	if t.opts.RetryOnFailure {
		result := async.WithRetry(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, t.handler(ctx)
		}, async.RetryConfig{
			Retries:           t.opts.MaxRetries,
			RetryDelay:        t.opts.RetryDelay,
			BackoffMultiplier: 2,
		})
		if !result.Success {
			err = result.Error
		}
	} else {
		err = t.handler(ctx)
	}

	duration := time.Since(start)

	t.mu.Lock()
	t.health.LastRun = start
	if err != nil {
		t.health.RunsFailed++
		t.health.ConsecutiveFailures++
		t.health.LastError = err.Error()
		t.health.Healthy = false
	} else {
		t.health.RunsSucceeded++
		t.health.ConsecutiveFailures = 0
		t.health.LastError = ""
		t.health.Healthy = true
	}
	t.mu.Unlock()

	if err != nil {
		observability.ScheduledTicks.WithLabelValues(t.id, "failed").Inc()
		s.logger.Error("scheduled task failed",
			zap.String("task_id", t.id),
			zap.Duration("duration", duration),
			zap.Error(err))

		if t.opts.NotifyOnFailure && s.notifier != nil {
			s.notifier(t.id, t.opts.Name, err)
		}
		return
	}

	observability.ScheduledTicks.WithLabelValues(t.id, "run").Inc()
	s.logger.Info("scheduled task completed",
		zap.String("task_id", t.id),
		zap.Duration("duration", duration))
}

// TaskHealthSnapshot returns the health of one task
func (s *Scheduler) TaskHealthSnapshot(id string) (TaskHealth, bool) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return TaskHealth{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.health, true
}

// HealthSnapshot returns the health of every task with health checks enabled
func (s *Scheduler) HealthSnapshot() map[string]TaskHealth {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	out := make(map[string]TaskHealth, len(tasks))
	for _, t := range tasks {
		if !t.opts.EnableHealthCheck {
			continue
		}
		t.mu.Lock()
		out[t.id] = t.health
		t.mu.Unlock()
	}
	return out
}

// TaskCount returns the number of registered tasks
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// DestroyAll cancels every task's trigger loop and waits for the loops to
// exit. Safe to call more than once.
func (s *Scheduler) DestroyAll() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
		<-t.done
	}

	s.logger.Info("scheduler destroyed", zap.Int("tasks", len(tasks)))
}
