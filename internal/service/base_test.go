package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gridhaven/haven/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
metadata:
  name: test-service
storage:
  base_path: /tmp/haven-test
content_types:
  archive:
    local_path: /tmp/haven-test/archive
    source: /tmp/haven-test-src
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	return path
}

// fakeRunner records lifecycle calls
type fakeRunner struct {
	initCalled  bool
	startCalled bool
	stopCalled  int
	initErr     error
	startErr    error
}

func (f *fakeRunner) InitializeComponents(ctx context.Context, cfg *config.Config) error {
	f.initCalled = true
	return f.initErr
}

func (f *fakeRunner) StartService(ctx context.Context) error {
	f.startCalled = true
	return f.startErr
}

func (f *fakeRunner) StopService(ctx context.Context) error {
	f.stopCalled++
	return nil
}

// recordingLifecycle records hook invocation order
type recordingLifecycle struct {
	NoopLifecycle
	calls *[]string
}

func (l recordingLifecycle) BeforeInitialize(context.Context) error {
	*l.calls = append(*l.calls, "before-init")
	return nil
}
func (l recordingLifecycle) AfterInitialize(context.Context) error {
	*l.calls = append(*l.calls, "after-init")
	return nil
}
func (l recordingLifecycle) BeforeStart(context.Context) error {
	*l.calls = append(*l.calls, "before-start")
	return nil
}
func (l recordingLifecycle) AfterStart(context.Context) error {
	*l.calls = append(*l.calls, "after-start")
	return nil
}

func newTestService(t *testing.T, runner Runner, lc Lifecycle) *BaseService {
	t.Helper()
	return New(Options{
		Name:                  "test-service",
		ConfigPath:            writeTestConfig(t),
		Lifecycle:             lc,
		HealthInterval:        time.Hour,
		DisableSignalHandling: true,
	}, runner)
}

func TestBaseService_FullLifecycle(t *testing.T) {
	runner := &fakeRunner{}
	var calls []string
	svc := newTestService(t, runner, recordingLifecycle{calls: &calls})
	ctx := context.Background()

	assert.Equal(t, StateCreated, svc.State())

	require.NoError(t, svc.Initialize(ctx))
	assert.Equal(t, StateReady, svc.State())
	assert.True(t, runner.initCalled)
	require.NotNil(t, svc.Config())
	require.NotNil(t, svc.Scheduler())
	require.NotNil(t, svc.Notifier())

	require.NoError(t, svc.Start(ctx))
	assert.Equal(t, StateRunning, svc.State())
	assert.True(t, runner.startCalled)

	svc.Stop()
	assert.Equal(t, StateStopped, svc.State())
	assert.Equal(t, 1, runner.stopCalled)

	assert.Equal(t, []string{"before-init", "after-init", "before-start", "after-start"}, calls)
}

func TestBaseService_InitializeFailsOnBadConfig(t *testing.T) {
	svc := New(Options{
		Name:                  "test-service",
		ConfigPath:            "/nonexistent/config.yaml",
		DisableSignalHandling: true,
	}, &fakeRunner{})

	err := svc.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, svc.State())
}

func TestBaseService_InitializeFailsOnComponentError(t *testing.T) {
	runner := &fakeRunner{initErr: errors.New("handler construction failed")}
	svc := newTestService(t, runner, nil)

	err := svc.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "component initialization failed")
	assert.Equal(t, StateFailed, svc.State())
}

func TestBaseService_StartRequiresReady(t *testing.T) {
	svc := newTestService(t, &fakeRunner{}, nil)

	err := svc.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start called in state CREATED")
}

func TestBaseService_StartFailureTransitionsToFailed(t *testing.T) {
	runner := &fakeRunner{startErr: errors.New("cannot schedule")}
	svc := newTestService(t, runner, nil)
	ctx := context.Background()

	require.NoError(t, svc.Initialize(ctx))
	err := svc.Start(ctx)
	require.Error(t, err)
	assert.Equal(t, StateFailed, svc.State())
}

func TestBaseService_StopIsIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	svc := newTestService(t, runner, nil)
	ctx := context.Background()

	require.NoError(t, svc.Initialize(ctx))
	require.NoError(t, svc.Start(ctx))

	svc.Stop()
	svc.Stop()
	svc.Stop()

	assert.Equal(t, 1, runner.stopCalled)
	assert.Equal(t, StateStopped, svc.State())
}

func TestBaseService_BuiltInHealthChecks(t *testing.T) {
	svc := newTestService(t, &fakeRunner{}, nil)
	ctx := context.Background()

	require.NoError(t, svc.Initialize(ctx))

	report := svc.CheckHealth(ctx)
	assert.Equal(t, OverallHealthy, report.Status)
	assert.Contains(t, report.Components, "scheduler")
	assert.Contains(t, report.Components, "progress")
}

func TestBaseService_CustomHealthCheckRollsUp(t *testing.T) {
	svc := newTestService(t, &fakeRunner{}, nil)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx))

	svc.Health().Register("storage", true, func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusDown, Message: "disk full"}
	})

	report := svc.CheckHealth(ctx)
	assert.Equal(t, OverallError, report.Status)
}

func TestBaseService_WaitForShutdown(t *testing.T) {
	svc := newTestService(t, &fakeRunner{}, nil)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx))
	require.NoError(t, svc.Start(ctx))

	done := make(chan struct{})
	go func() {
		svc.WaitForShutdown()
		close(done)
	}()

	svc.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForShutdown did not return after Stop")
	}
}
