package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/notify"
	"github.com/gridhaven/haven/internal/progress"
	"github.com/gridhaven/haven/internal/service"
	"github.com/gridhaven/haven/internal/syncengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeps() Deps {
	cfg := &config.Config{
		Sync: config.SyncConfig{
			TimeoutDuration:    time.Second,
			RetryDelayDuration: time.Millisecond,
		},
	}
	return Deps{
		Engine:   syncengine.New(cfg, progress.NewManager(), notify.New(config.NotificationConfig{})),
		Progress: progress.NewManager(),
		Health:   service.NewHealthRegistry(),
	}
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint_Healthy(t *testing.T) {
	deps := newTestDeps()
	deps.Health.Register("storage", true, func(ctx context.Context) service.CheckResult {
		return service.CheckResult{Status: service.StatusUp}
	})
	router := NewRouter("test", deps)

	rec := get(t, router, "/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var report service.HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, service.OverallHealthy, report.Status)
	assert.Contains(t, report.Components, "storage")
}

func TestHealthEndpoint_CriticalFailureIs503(t *testing.T) {
	deps := newTestDeps()
	deps.Health.Register("storage", true, func(ctx context.Context) service.CheckResult {
		return service.CheckResult{Status: service.StatusDown, Message: "disk full"}
	})
	router := NewRouter("test", deps)

	rec := get(t, router, "/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusEndpoint_ReportsEngine(t *testing.T) {
	deps := newTestDeps()
	router := NewRouter("test", deps)

	rec := get(t, router, "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status syncengine.EngineStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.IsRunning)
	assert.Empty(t, status.Results)
}

func TestProgressEndpoint_ReportsSummary(t *testing.T) {
	deps := newTestDeps()
	tracker := deps.Progress.CreateTracker(progress.Config{OperationID: "op-1", TotalItems: 10})
	tracker.Start()
	router := NewRouter("test", deps)

	rec := get(t, router, "/v1/progress")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Summary    progress.Summary  `json:"summary"`
		Operations []progress.Update `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Summary.Active)
	require.Len(t, body.Operations, 1)
	assert.Equal(t, "op-1", body.Operations[0].OperationID)
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter("test", newTestDeps())

	rec := get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
