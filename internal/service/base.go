package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/logging"
	"github.com/gridhaven/haven/internal/notify"
	"github.com/gridhaven/haven/internal/progress"
	"github.com/gridhaven/haven/internal/scheduler"
	"go.uber.org/zap"
)

// State is the lifecycle state of a BaseService
type State string

const (
	StateCreated      State = "CREATED"
	StateConfiguring  State = "CONFIGURING"
	StateInitializing State = "INITIALIZING"
	StateReady        State = "READY"
	StateRunning      State = "RUNNING"
	StateStopping     State = "STOPPING"
	StateStopped      State = "STOPPED"
	StateFailed       State = "FAILED"
)

// defaultHealthInterval is how often the periodic self-check runs
const defaultHealthInterval = 5 * time.Minute

// Lifecycle provides extension points at each lifecycle transition
type Lifecycle interface {
	BeforeInitialize(ctx context.Context) error
	AfterInitialize(ctx context.Context) error
	BeforeStart(ctx context.Context) error
	AfterStart(ctx context.Context) error
}

// NoopLifecycle implements Lifecycle with no-ops; embed it to override
// only the hooks you need
type NoopLifecycle struct{}

func (NoopLifecycle) BeforeInitialize(context.Context) error { return nil }
func (NoopLifecycle) AfterInitialize(context.Context) error  { return nil }
func (NoopLifecycle) BeforeStart(context.Context) error      { return nil }
func (NoopLifecycle) AfterStart(context.Context) error       { return nil }

// Runner is the concrete service behavior plugged into a BaseService
type Runner interface {
	// InitializeComponents builds the service's components from config
	InitializeComponents(ctx context.Context, cfg *config.Config) error
	// StartService begins the service's work (scheduling tasks, initial sync)
	StartService(ctx context.Context) error
	// StopService cancels in-flight work; must tolerate double invocation
	StopService(ctx context.Context) error
}

// Options configure a BaseService
type Options struct {
	Name           string
	ConfigPath     string
	Lifecycle      Lifecycle
	HealthInterval time.Duration
	// DisableSignalHandling is set by one-shot CLI commands and tests
	DisableSignalHandling bool
}

// BaseService owns the process lifecycle: load config, init components,
// start, run, stop. It carries the scheduler, the progress manager, the
// health registry and the notification sink every sync service shares.
type BaseService struct {
	opts   Options
	runner Runner

	mu    sync.RWMutex
	state State

	cfg       *config.Config
	sched     *scheduler.Scheduler
	progress  *progress.Manager
	health    *HealthRegistry
	notifier  *notify.Notifier
	logger    *logging.SafeLogger
	stopOnce  sync.Once
	stopChan  chan struct{}
	healthTkr *time.Ticker
}

// New creates a BaseService around a runner
func New(opts Options, runner Runner) *BaseService {
	if opts.Lifecycle == nil {
		opts.Lifecycle = NoopLifecycle{}
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = defaultHealthInterval
	}

	return &BaseService{
		opts:     opts,
		runner:   runner,
		state:    StateCreated,
		health:   NewHealthRegistry(),
		progress: progress.NewManager(),
		stopChan: make(chan struct{}),
		logger:   logging.Logger.With(zap.String("service_name", opts.Name)),
	}
}

// State returns the current lifecycle state
func (s *BaseService) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *BaseService) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.logger.Debug("service state changed", zap.String("state", string(state)))
}

// Config returns the loaded configuration; nil before Initialize
func (s *BaseService) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Scheduler returns the service's scheduler; nil before Initialize
func (s *BaseService) Scheduler() *scheduler.Scheduler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sched
}

// Progress returns the service's progress manager
func (s *BaseService) Progress() *progress.Manager {
	return s.progress
}

// Health returns the health-check registry
func (s *BaseService) Health() *HealthRegistry {
	return s.health
}

// Notifier returns the notification sink; nil before Initialize
func (s *BaseService) Notifier() *notify.Notifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifier
}

// Initialize loads and validates config, sets up logging, health checks and
// components. Callers must not Start a service whose Initialize failed.
func (s *BaseService) Initialize(ctx context.Context) error {
	if s.State() != StateCreated {
		return fmt.Errorf("service %s: initialize called in state %s", s.opts.Name, s.State())
	}

	if err := s.opts.Lifecycle.BeforeInitialize(ctx); err != nil {
		return s.failf("before-initialize hook failed: %w", err)
	}

	s.setState(StateConfiguring)
	cfg, err := config.Load(s.opts.ConfigPath)
	if err != nil {
		// Configuration errors are fatal, never retried
		return s.failf("configuration failed: %w", err)
	}

	if err := logging.InitLogger(); err != nil {
		return s.failf("logging setup failed: %w", err)
	}
	s.logger = logging.Logger.With(zap.String("service_name", s.opts.Name))

	s.setState(StateInitializing)

	notifier := notify.New(cfg.Notifications)
	sched := scheduler.New(func(taskID, taskName string, err error) {
		notifier.Send(notify.FailureEvent(taskName, err))
	})

	s.mu.Lock()
	s.cfg = cfg
	s.notifier = notifier
	s.sched = sched
	s.mu.Unlock()

	s.setupHealthChecks()

	if err := s.runner.InitializeComponents(ctx, cfg); err != nil {
		return s.failf("component initialization failed: %w", err)
	}

	if err := s.opts.Lifecycle.AfterInitialize(ctx); err != nil {
		return s.failf("after-initialize hook failed: %w", err)
	}

	s.setState(StateReady)
	s.logger.Info("service initialized",
		zap.String("config_path", s.opts.ConfigPath),
		zap.Int("content_types", len(cfg.ContentTypes)))
	return nil
}

// setupHealthChecks registers the framework's own component checks
func (s *BaseService) setupHealthChecks() {
	s.health.Register("scheduler", true, func(ctx context.Context) CheckResult {
		sched := s.Scheduler()
		if sched == nil {
			return CheckResult{Status: StatusDown, Message: "scheduler not initialized"}
		}

		snapshot := sched.HealthSnapshot()
		unhealthy := 0
		details := make(map[string]interface{}, len(snapshot))
		for id, h := range snapshot {
			details[id] = h
			if !h.Healthy {
				unhealthy++
			}
		}
		if unhealthy > 0 {
			return CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%d of %d tasks unhealthy", unhealthy, len(snapshot)),
				Details: details,
			}
		}
		return CheckResult{Status: StatusUp, Details: details}
	})

	s.health.Register("progress", false, func(ctx context.Context) CheckResult {
		summary := s.progress.GetProgressSummary()
		return CheckResult{
			Status: StatusUp,
			Details: map[string]interface{}{
				"active":    summary.Active,
				"completed": summary.Completed,
				"failed":    summary.Failed,
			},
		}
	})
}

// Start runs the service: subclass start, signal handlers, periodic health
// loop. Blocks only in the hooks and StartService, not for the service's
// lifetime; use WaitForShutdown for that.
func (s *BaseService) Start(ctx context.Context) error {
	if s.State() != StateReady {
		return fmt.Errorf("service %s: start called in state %s", s.opts.Name, s.State())
	}

	if err := s.opts.Lifecycle.BeforeStart(ctx); err != nil {
		return s.failf("before-start hook failed: %w", err)
	}

	if err := s.runner.StartService(ctx); err != nil {
		return s.failf("service start failed: %w", err)
	}

	if !s.opts.DisableSignalHandling {
		go s.handleSignals()
	}
	go s.healthLoop()

	if err := s.opts.Lifecycle.AfterStart(ctx); err != nil {
		return s.failf("after-start hook failed: %w", err)
	}

	s.setState(StateRunning)
	s.logger.Info("service started")
	return nil
}

// handleSignals stops the service on SIGINT/SIGTERM
func (s *BaseService) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		s.Stop()
	case <-s.stopChan:
	}
}

// healthLoop runs the periodic self-check until the service stops
func (s *BaseService) healthLoop() {
	ticker := time.NewTicker(s.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			report := s.health.RunChecks(context.Background())
			switch report.Status {
			case OverallError:
				s.logger.Error("health check failed", zap.Any("report", report))
			case OverallDegraded:
				s.logger.Warn("health check degraded", zap.Any("report", report))
			default:
				s.logger.Debug("health check passed")
			}
		}
	}
}

// CheckHealth evaluates all component checks immediately
func (s *BaseService) CheckHealth(ctx context.Context) HealthReport {
	return s.health.RunChecks(ctx)
}

// Stop shuts the service down. Idempotent and safe to call from a signal
// handler or concurrently with Start.
func (s *BaseService) Stop() {
	s.stopOnce.Do(func() {
		s.setState(StateStopping)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.runner.StopService(ctx); err != nil {
			s.logger.Error("service stop reported error", zap.Error(err))
		}

		if sched := s.Scheduler(); sched != nil {
			sched.DestroyAll()
		}
		s.progress.CancelAllOperations()

		close(s.stopChan)
		s.setState(StateStopped)
		s.logger.Info("service stopped")
	})
}

// WaitForShutdown blocks until Stop completes
func (s *BaseService) WaitForShutdown() {
	<-s.stopChan
}

// failf transitions to FAILED and returns the formatted error
func (s *BaseService) failf(format string, args ...interface{}) error {
	err := fmt.Errorf("service %s: "+format, append([]interface{}{s.opts.Name}, args...)...)
	s.setState(StateFailed)
	s.logger.Error("service failed", zap.Error(err))
	return err
}
