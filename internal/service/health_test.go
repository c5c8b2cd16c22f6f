package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func up(ctx context.Context) CheckResult       { return CheckResult{Status: StatusUp} }
func degraded(ctx context.Context) CheckResult { return CheckResult{Status: StatusDegraded} }
func down(ctx context.Context) CheckResult     { return CheckResult{Status: StatusDown} }

func TestHealthRegistry_AllUp(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("a", true, up)
	r.Register("b", false, up)

	report := r.RunChecks(context.Background())
	assert.Equal(t, OverallHealthy, report.Status)
	assert.Len(t, report.Components, 2)
}

func TestHealthRegistry_CriticalDownIsError(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("storage", true, down)
	r.Register("other", false, up)

	report := r.RunChecks(context.Background())
	assert.Equal(t, OverallError, report.Status)
}

func TestHealthRegistry_NonCriticalDownOnlyDegrades(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("storage", true, up)
	r.Register("webhook", false, down)

	report := r.RunChecks(context.Background())
	assert.Equal(t, OverallDegraded, report.Status)
}

func TestHealthRegistry_DegradedComponentDegrades(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("storage", true, degraded)

	report := r.RunChecks(context.Background())
	assert.Equal(t, OverallDegraded, report.Status)
}

func TestHealthRegistry_CriticalDownWinsOverDegraded(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("a", false, degraded)
	r.Register("b", true, down)
	r.Register("c", false, down)

	report := r.RunChecks(context.Background())
	assert.Equal(t, OverallError, report.Status)
}

func TestHealthRegistry_ReRegisterReplaces(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("a", true, down)
	r.Register("a", true, up)

	report := r.RunChecks(context.Background())
	assert.Equal(t, OverallHealthy, report.Status)
	assert.Len(t, report.Components, 1)
}

func TestHealthRegistry_Empty(t *testing.T) {
	r := NewHealthRegistry()
	report := r.RunChecks(context.Background())
	assert.Equal(t, OverallHealthy, report.Status)
	assert.Empty(t, report.Components)
}
