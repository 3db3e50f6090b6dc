// Package handlers aggregates the dependency checks behind /health and
// /ready.
package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthChecker is what the ops routes call.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc fails with the reason the dependency is unusable.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is served as-is by /health.
type HealthStatus struct {
	// Healthy is false when any check failed.
	Healthy bool `json:"healthy"`

	// Ready is false when a required check failed. A failing optional
	// check (Redis) leaves the service ready but degraded.
	Ready bool `json:"ready"`

	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Required bool   `json:"required"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type registeredCheck struct {
	name     string
	fn       HealthCheckFunc
	required bool
}

// CompositeHealthChecker runs every registered check in parallel, each
// under its own timeout.
type CompositeHealthChecker struct {
	version string
	started time.Time
	timeout time.Duration

	mu     sync.RWMutex
	checks []registeredCheck
}

func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{version: version, started: time.Now(), timeout: 3 * time.Second}
}

// AddCheck registers a dependency the service cannot serve without.
func (c *CompositeHealthChecker) AddCheck(name string, fn HealthCheckFunc) {
	c.register(registeredCheck{name: name, fn: fn, required: true})
}

// AddOptionalCheck registers a dependency whose loss only degrades.
func (c *CompositeHealthChecker) AddOptionalCheck(name string, fn HealthCheckFunc) {
	c.register(registeredCheck{name: name, fn: fn})
}

func (c *CompositeHealthChecker) register(rc registeredCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.checks {
		if c.checks[i].name == rc.name {
			c.checks[i] = rc
			return
		}
	}
	c.checks = append(c.checks, rc)
}

func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := append([]registeredCheck(nil), c.checks...)
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	if len(checks) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, rc := range checks {
		g.Go(func() error {
			results[i] = c.run(ctx, rc)
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for i, rc := range checks {
		res := results[i]
		status.Checks[rc.name] = res
		if res.Healthy {
			continue
		}
		status.Healthy = false
		if res.Required {
			status.Ready = false
		}
		failed = append(failed, rc.name)
	}
	sort.Strings(failed)

	switch {
	case status.Healthy:
		status.Message = "All checks passed"
	case status.Ready:
		status.Message = "Degraded: " + strings.Join(failed, ", ")
	default:
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return status
}

func (c *CompositeHealthChecker) run(ctx context.Context, rc registeredCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := rc.fn(ctx)
	res := CheckResult{
		Healthy:  err == nil,
		Required: rc.required,
		Message:  "OK",
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// Pinger is satisfied by the Postgres connection and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewPingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}

// NoopHealthChecker is used when the server is built without checks.
type NoopHealthChecker struct {
	started time.Time
}

func NewNoopHealthChecker() *NoopHealthChecker {
	return &NoopHealthChecker{started: time.Now()}
}

func (n *NoopHealthChecker) Check(context.Context) HealthStatus {
	return HealthStatus{
		Healthy:   true,
		Ready:     true,
		Message:   "OK",
		Uptime:    time.Since(n.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}
