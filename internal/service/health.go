package service

import (
	"context"
	"sync"
	"time"

	"github.com/gridhaven/haven/internal/observability"
)

// ComponentStatus is the health state of a single component
type ComponentStatus string

const (
	StatusUp       ComponentStatus = "UP"
	StatusDegraded ComponentStatus = "DEGRADED"
	StatusDown     ComponentStatus = "DOWN"
)

// OverallStatus is the rolled-up service health exposed externally
type OverallStatus string

const (
	OverallHealthy  OverallStatus = "healthy"
	OverallDegraded OverallStatus = "degraded"
	OverallError    OverallStatus = "error"
)

// CheckResult is the outcome of one component check
type CheckResult struct {
	Status  ComponentStatus        `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// CheckFunc evaluates one component's health
type CheckFunc func(ctx context.Context) CheckResult

// HealthReport is the aggregate health of the service
type HealthReport struct {
	Status     OverallStatus          `json:"status"`
	Components map[string]CheckResult `json:"details"`
	CheckedAt  time.Time              `json:"checked_at"`
}

// component is one registered health check
type component struct {
	name     string
	critical bool
	check    CheckFunc
}

// HealthRegistry holds named component checks. A critical component
// reporting DOWN takes the whole service DOWN; non-critical components
// only degrade it.
type HealthRegistry struct {
	mu         sync.RWMutex
	components []component
}

// NewHealthRegistry creates an empty registry
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{}
}

// Register adds a component check. Re-registering a name replaces the check.
func (r *HealthRegistry) Register(name string, critical bool, check CheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.components {
		if r.components[i].name == name {
			r.components[i] = component{name: name, critical: critical, check: check}
			return
		}
	}
	r.components = append(r.components, component{name: name, critical: critical, check: check})
}

// RunChecks evaluates every registered component and rolls up the result
func (r *HealthRegistry) RunChecks(ctx context.Context) HealthReport {
	r.mu.RLock()
	components := make([]component, len(r.components))
	copy(components, r.components)
	r.mu.RUnlock()

	report := HealthReport{
		Status:     OverallHealthy,
		Components: make(map[string]CheckResult, len(components)),
		CheckedAt:  time.Now(),
	}

	for _, c := range components {
		result := c.check(ctx)
		report.Components[c.name] = result

		switch result.Status {
		case StatusDown:
			if c.critical {
				report.Status = OverallError
			} else if report.Status != OverallError {
				report.Status = OverallDegraded
			}
			observability.HealthCheckStatus.WithLabelValues(c.name).Set(0)
		case StatusDegraded:
			if report.Status == OverallHealthy {
				report.Status = OverallDegraded
			}
			observability.HealthCheckStatus.WithLabelValues(c.name).Set(0.5)
		default:
			observability.HealthCheckStatus.WithLabelValues(c.name).Set(1)
		}
	}

	return report
}
