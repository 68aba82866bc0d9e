package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// HealthChecker reports whether the engine and its dependencies are usable.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc checks a single dependency and returns an error on failure.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the aggregated answer served on /health and /ready.
// Healthy and Ready move together for this engine; a failing
// dependency takes both down.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Healthy     bool      `json:"healthy"`
	Message     string    `json:"message,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	LastChecked time.Time `json:"last_checked,omitempty"`
}

// CompositeHealthChecker fans registered checks out in parallel, each under
// its own timeout, and folds the results into one HealthStatus. The engine
// registers postgres and, when caching is enabled, redis.
type CompositeHealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheckFunc
	startedAt time.Time
	version   string
	timeout   time.Duration
}

// NewCompositeHealthChecker creates a checker with no checks registered.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:    make(map[string]HealthCheckFunc),
		startedAt: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// AddCheck registers a named check. Re-registering a name replaces it.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// Check runs every registered check and aggregates the results. A single
// failure marks the whole service unhealthy and not ready.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.startedAt).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}

	if len(checks) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	var (
		wg      sync.WaitGroup
		resMu   sync.Mutex
		results = make(map[string]CheckResult, len(checks))
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheckFunc) {
			defer wg.Done()
			res := c.runCheck(ctx, check)
			resMu.Lock()
			results[name] = res
			resMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	var failed []string
	for name, res := range results {
		status.Checks[name] = res
		if !res.Healthy {
			failed = append(failed, name)
		}
	}

	if len(failed) == 0 {
		status.Message = "All checks passed"
		return status
	}

	sort.Strings(failed)
	status.Healthy = false
	status.Ready = false
	status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	return status
}

func (c *CompositeHealthChecker) runCheck(ctx context.Context, check HealthCheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := check(checkCtx)

	res := CheckResult{
		Healthy:     err == nil,
		Message:     "OK",
		Duration:    time.Since(start).Round(time.Millisecond).String(),
		LastChecked: time.Now().UTC(),
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// Pinger is anything that can confirm connectivity with a ping.
// Both the postgres connection and the redis cache satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck creates a health check from a pingable dependency.
func NewPingCheck(dep Pinger) HealthCheckFunc {
	return func(ctx context.Context) error {
		return dep.Ping(ctx)
	}
}
