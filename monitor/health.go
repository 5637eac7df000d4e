package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/chatwire/chatwire-go/transport"
)

// Status represents a health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one health check.
type CheckResult struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// OverallHealth aggregates all check results. The overall status is the
// worst individual status.
type OverallHealth struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Checker runs one health check.
type Checker interface {
	Check(ctx context.Context) CheckResult
	Name() string
}

// TransportChecker reports the health of a transport connection.
// Connected is healthy, reconnecting is degraded, anything else is
// unhealthy.
type TransportChecker struct {
	name      string
	transport transport.Transport
}

// NewTransportChecker creates a health checker for a transport.
func NewTransportChecker(name string, t transport.Transport) *TransportChecker {
	return &TransportChecker{name: name, transport: t}
}

// Name implements Checker.
func (c *TransportChecker) Name() string {
	return c.name
}

// Check implements Checker.
func (c *TransportChecker) Check(ctx context.Context) CheckResult {
	state := c.transport.ConnectionState()
	result := CheckResult{
		Name:      c.name,
		Timestamp: time.Now().UTC(),
		Details:   map[string]any{"connectionState": string(state)},
	}

	switch state {
	case transport.StateConnected:
		result.Status = StatusHealthy
	case transport.StateReconnecting, transport.StateConnecting:
		result.Status = StatusDegraded
		result.Message = "connection not yet established"
	default:
		result.Status = StatusUnhealthy
		result.Message = "transport disconnected"
	}
	return result
}

// HealthRegistry runs a set of health checks.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{
		checkers: make(map[string]Checker),
	}
}

// Register adds a checker, replacing any checker with the same name.
func (r *HealthRegistry) Register(checker Checker) {
	r.mu.Lock()
	r.checkers[checker.Name()] = checker
	r.mu.Unlock()
}

// Unregister removes a checker by name.
func (r *HealthRegistry) Unregister(name string) {
	r.mu.Lock()
	delete(r.checkers, name)
	r.mu.Unlock()
}

// CheckAll runs every registered checker and aggregates the results.
func (r *HealthRegistry) CheckAll(ctx context.Context) OverallHealth {
	r.mu.RLock()
	checkers := make([]Checker, 0, len(r.checkers))
	for _, c := range r.checkers {
		checkers = append(checkers, c)
	}
	r.mu.RUnlock()

	overall := OverallHealth{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckResult, len(checkers)),
	}

	for _, checker := range checkers {
		result := checker.Check(ctx)
		overall.Checks[result.Name] = result

		switch result.Status {
		case StatusUnhealthy:
			overall.Status = StatusUnhealthy
		case StatusDegraded:
			if overall.Status == StatusHealthy {
				overall.Status = StatusDegraded
			}
		}
	}
	return overall
}
