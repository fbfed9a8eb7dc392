// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// HealthStatus is the outcome of a single health check run.
type HealthStatus string

const (
	// HealthHealthy means the check function returned success.
	HealthHealthy HealthStatus = "healthy"
	// HealthUnhealthy means the check failed, errored, or timed out.
	HealthUnhealthy HealthStatus = "unhealthy"
	// HealthUnknown means the check has never run.
	HealthUnknown HealthStatus = "unknown"
)

// CheckFunc probes one dependency. A nil error with optional details means
// healthy; any error means unhealthy.
type CheckFunc func(ctx context.Context) (details map[string]any, err error)

// CheckResult records the outcome of the most recent run of a check.
type CheckResult struct {
	Status    HealthStatus   `json:"status"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// RegistryReport aggregates the results of every registered check.
type RegistryReport struct {
	// Overall is healthy iff every individual check is healthy.
	Overall   HealthStatus           `json:"overall_status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// registeredCheck pairs a check function with its schedule.
type registeredCheck struct {
	fn       CheckFunc
	interval time.Duration
	timeout  time.Duration
	lastRun  time.Time
	nextDue  time.Time
	last     CheckResult
}

// HealthRegistry tracks named health checks and their latest results.
//
// The registry is explicitly constructed and injected into whatever builds
// agents or the orchestrator; there is no package-level instance. Results
// live only in memory and are never persisted.
//
// Thread Safety: safe for concurrent use.
type HealthRegistry struct {
	logger *slog.Logger

	mu     sync.Mutex
	checks map[string]*registeredCheck
}

// NewHealthRegistry creates an empty registry. A nil logger falls back to
// slog.Default().
func NewHealthRegistry(logger *slog.Logger) *HealthRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthRegistry{
		logger: logger,
		checks: make(map[string]*registeredCheck),
	}
}

// Register adds or replaces a named check.
//
// Inputs:
//
//	name - Unique check name, e.g. "yama_agent_health".
//	fn - The probe function.
//	interval - How often the check is due (informational scheduling).
//	timeout - Per-run wall-clock budget, enforced via WithDeadline.
func (r *HealthRegistry) Register(name string, fn CheckFunc, interval, timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checks[name] = &registeredCheck{
		fn:       fn,
		interval: interval,
		timeout:  timeout,
		nextDue:  time.Now(),
		last:     CheckResult{Status: HealthUnknown},
	}
}

// Deregister removes a named check. Unknown names are ignored.
func (r *HealthRegistry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checks, name)
}

// Run executes one named check under its timeout and records the result.
func (r *HealthRegistry) Run(ctx context.Context, name string) (CheckResult, error) {
	r.mu.Lock()
	check, ok := r.checks[name]
	r.mu.Unlock()
	if !ok {
		return CheckResult{Status: HealthUnknown}, ErrCheckNotRegistered
	}

	start := time.Now()

	var details map[string]any
	err := WithDeadline(ctx, name, check.timeout, func(ctx context.Context) error {
		var checkErr error
		details, checkErr = check.fn(ctx)
		return checkErr
	})

	result := CheckResult{
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}
	if err != nil {
		result.Status = HealthUnhealthy
		result.Error = err.Error()
		r.logger.Warn("health check failed",
			slog.String("check", name),
			slog.String("error", err.Error()),
		)
	} else {
		result.Status = HealthHealthy
		result.Details = details
	}

	r.mu.Lock()
	check.last = result
	check.lastRun = result.Timestamp
	check.nextDue = result.Timestamp.Add(check.interval)
	r.mu.Unlock()

	return result, nil
}

// RunAll executes every registered check and aggregates the results.
// Overall status is healthy iff every check reported healthy.
func (r *HealthRegistry) RunAll(ctx context.Context) RegistryReport {
	r.mu.Lock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	r.mu.Unlock()

	report := RegistryReport{
		Overall:   HealthHealthy,
		Checks:    make(map[string]CheckResult, len(names)),
		Timestamp: time.Now(),
	}
	for _, name := range names {
		result, err := r.Run(ctx, name)
		if err != nil {
			continue // deregistered concurrently
		}
		report.Checks[name] = result
		if result.Status != HealthHealthy {
			report.Overall = HealthUnhealthy
		}
	}
	return report
}

// Status returns the last recorded result for a named check without
// re-running it.
func (r *HealthRegistry) Status(name string) CheckResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if check, ok := r.checks[name]; ok {
		return check.last
	}
	return CheckResult{Status: HealthUnknown}
}
