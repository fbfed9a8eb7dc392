// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianFlow/services/pipeline/resilience"
)

// Status is the adapter-level lifecycle state of a wrapped agent.
type Status string

const (
	// StatusIdle means the agent is ready for its next execution.
	StatusIdle Status = "idle"
	// StatusRunning means an execution is in flight.
	StatusRunning Status = "running"
	// StatusCompleted means the last execution succeeded.
	StatusCompleted Status = "completed"
	// StatusFailed means the last execution failed. A failed agent must
	// be Reset before it is executed again.
	StatusFailed Status = "failed"
)

// Config tunes the resilience envelope around one agent.
type Config struct {
	// MaxAttempts is the retry budget for ExecuteWithResilience
	// (total attempts, default: 3).
	MaxAttempts int

	// Timeout is the per-attempt wall-clock budget (default: 5m).
	Timeout time.Duration

	// FailureThreshold opens the circuit breaker after this many
	// consecutive failures (default: 5).
	FailureThreshold int

	// RecoveryTimeout is the breaker cooldown (default: 60s).
	RecoveryTimeout time.Duration

	// MaxConcurrent bounds simultaneous executions; excess calls are
	// rejected, not queued (default: 5).
	MaxConcurrent int

	// SkipResourceChecks disables host memory/disk pre-checks.
	SkipResourceChecks bool
}

// DefaultConfig returns the adapter defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		Timeout:          5 * time.Minute,
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		MaxConcurrent:    5,
	}
}

// Metrics is a rolling execution counter for one wrapped agent.
type Metrics struct {
	ExecutionCount  int64         `json:"execution_count"`
	SuccessCount    int64         `json:"success_count"`
	FailureCount    int64         `json:"failure_count"`
	TotalDuration   time.Duration `json:"total_duration"`
	LastExecution   time.Time     `json:"last_execution"`
	AverageDuration time.Duration `json:"average_duration"`
	SuccessRate     float64       `json:"success_rate"`
	FailureRate     float64       `json:"failure_rate"`
}

// ErrorEntry is one record in the adapter's append-only error log.
type ErrorEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message"`
	Kind      string         `json:"kind"`
	Context   map[string]any `json:"context,omitempty"`
}

// Snapshot is a consistent view of the adapter's state.
type Snapshot struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Errors   []ErrorEntry  `json:"errors"`
	Duration time.Duration `json:"duration"`
	Metrics  Metrics       `json:"metrics"`
}

// Adapter wraps an Agent with status tracking, metrics, an error log, and
// the full resilience envelope (bulkhead, circuit breaker, retry,
// deadline). One Adapter wraps exactly one Agent for the process lifetime.
//
// Thread Safety: safe for concurrent use; concurrent executions beyond
// MaxConcurrent are rejected by the bulkhead.
type Adapter struct {
	agent  Agent
	config Config
	logger *slog.Logger
	health *resilience.HealthRegistry

	bulkhead  *resilience.Bulkhead
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryPolicy
	resources ResourceChecker

	mu        sync.Mutex
	status    Status
	errLog    []ErrorEntry
	startTime time.Time
	endTime   time.Time

	executionCount int64
	successCount   int64
	failureCount   int64
	totalDuration  time.Duration
	lastExecution  time.Time
}

// NewAdapter wraps an agent.
//
// Inputs:
//
//	a - The agent to wrap. Must not be nil.
//	config - Resilience envelope settings; zero fields use defaults.
//	health - Registry the adapter registers its health check in.
//	May be nil to skip registration.
//	logger - Logger for lifecycle events. If nil, uses slog.Default().
//
// Outputs:
//
//	*Adapter - Ready to execute.
func NewAdapter(a Agent, config Config, health *resilience.HealthRegistry, logger *slog.Logger) *Adapter {
	def := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = def.RecoveryTimeout
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}

	ad := &Adapter{
		agent:  a,
		config: config,
		logger: logger.With(slog.String("agent", a.Name())),
		health: health,
		bulkhead: resilience.NewBulkhead(config.MaxConcurrent),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: config.FailureThreshold,
			RecoveryTimeout:  config.RecoveryTimeout,
		}),
		retry: resilience.RetryPolicy{
			MaxAttempts: config.MaxAttempts,
			BaseDelay:   time.Second,
			MaxDelay:    60 * time.Second,
			Multiplier:  2.0,
			Jitter:      true,
		},
		resources: NewHostResourceChecker(),
		status:    StatusIdle,
	}
	if config.SkipResourceChecks {
		ad.resources = nopResourceChecker{}
	}

	if health != nil {
		health.Register(a.Name()+"_agent_health", ad.healthCheck, time.Minute, 10*time.Second)
	}

	return ad
}

// Name returns the wrapped agent's name.
func (ad *Adapter) Name() string { return ad.agent.Name() }

// Unwrap returns the wrapped agent.
func (ad *Adapter) Unwrap() Agent { return ad.agent }

// healthCheck reports the adapter's own state to the health registry.
func (ad *Adapter) healthCheck(ctx context.Context) (map[string]any, error) {
	ad.mu.Lock()
	status := ad.status
	failures := ad.failureCount
	ad.mu.Unlock()

	if status == StatusFailed {
		return nil, fmt.Errorf("agent %s is in failed state", ad.agent.Name())
	}
	return map[string]any{
		"status":        string(status),
		"failure_count": failures,
	}, nil
}

// Execute runs the agent once with status and metric bookkeeping but
// without the resilience envelope. Used by the orchestrator, which owns
// its own persistence-aware retry loop.
func (ad *Adapter) Execute(ctx context.Context, input Input) (Output, error) {
	if err := ad.preExecutionChecks(true); err != nil {
		ad.recordError(err.Error(), "pre_execution", nil)
		return nil, err
	}
	return ad.executeOnce(ctx, input)
}

// executeOnce is the bookkeeping-wrapped invocation shared by Execute and
// the resilience envelope. Pre-execution checks have already passed.
func (ad *Adapter) executeOnce(ctx context.Context, input Input) (Output, error) {
	ad.beginExecution()

	output, err := ad.agent.Execute(ctx, input)
	if err == nil && output == nil {
		err = fmt.Errorf("agent returned nil output")
	}
	if err != nil {
		ad.endExecution(false)
		ad.recordError(err.Error(), "execution_error", map[string]any{
			"input_keys": keysOf(input),
		})
		return nil, ad.wrapError(err, input)
	}

	ad.endExecution(true)
	return output, nil
}

// ExecuteWithResilience runs the agent under the full envelope, composed
// outermost to innermost: bulkhead, circuit breaker, retry, deadline.
//
// Any failure surfaces as a single *ExecutionError naming the agent and
// embedding the original cause, except *ToolIntegrationError and an
// already-wrapped *ExecutionError, which pass through untouched.
func (ad *Adapter) ExecuteWithResilience(ctx context.Context, input Input) (Output, error) {
	// The failed-state gate applies to the call as a whole; attempts
	// inside this envelope's own retry loop only re-check resources.
	if err := ad.preExecutionChecks(true); err != nil {
		ad.recordError(err.Error(), "pre_execution", nil)
		return nil, err
	}

	var output Output
	err := ad.bulkhead.Call(ctx, func(ctx context.Context) error {
		return ad.breaker.Call(ctx, func(ctx context.Context) error {
			return ad.retry.Do(ctx, func(ctx context.Context) error {
				return resilience.WithDeadline(ctx, ad.agent.Name()+".Execute", ad.config.Timeout,
					func(ctx context.Context) error {
						if err := ad.preExecutionChecks(false); err != nil {
							ad.recordError(err.Error(), "pre_execution", nil)
							return err
						}
						out, err := ad.executeOnce(ctx, input)
						if err != nil {
							return err
						}
						output = out
						return nil
					})
			})
		})
	})
	if err != nil {
		return nil, ad.wrapError(err, input)
	}

	return output, nil
}

// wrapError converts an arbitrary failure into the package taxonomy.
// ExecutionError and ToolIntegrationError pass through unchanged.
func (ad *Adapter) wrapError(err error, input Input) error {
	var execErr *ExecutionError
	var toolErr *ToolIntegrationError
	if errors.As(err, &execErr) || errors.As(err, &toolErr) {
		return err
	}

	return &ExecutionError{
		Agent: ad.agent.Name(),
		Err:   err,
		Context: map[string]any{
			"input_keys": keysOf(input),
			"status":     string(ad.CurrentStatus()),
		},
	}
}

// preExecutionChecks rejects execution from a failed agent (when
// gateFailed is set) or a host under resource pressure.
func (ad *Adapter) preExecutionChecks(gateFailed bool) error {
	ad.mu.Lock()
	status := ad.status
	ad.mu.Unlock()

	if gateFailed && status == StatusFailed {
		return &ExecutionError{
			Agent: ad.agent.Name(),
			Err:   fmt.Errorf("agent is in failed state, reset required"),
			Context: map[string]any{
				"status": string(status),
			},
		}
	}

	return ad.resources.Check()
}

func (ad *Adapter) beginExecution() {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	ad.status = StatusRunning
	ad.startTime = time.Now()
	ad.endTime = time.Time{}
	ad.executionCount++
	ad.lastExecution = ad.startTime
	ad.logger.Info("agent execution started")
}

func (ad *Adapter) endExecution(success bool) {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	ad.endTime = time.Now()
	ad.totalDuration += ad.endTime.Sub(ad.startTime)
	if success {
		ad.successCount++
		ad.status = StatusCompleted
	} else {
		ad.failureCount++
		ad.status = StatusFailed
	}
	ad.logger.Info("agent execution finished",
		slog.Bool("success", success),
		slog.Duration("duration", ad.endTime.Sub(ad.startTime)),
	)
}

// recordError appends to the adapter's error log.
func (ad *Adapter) recordError(message, kind string, context map[string]any) {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	ad.errLog = append(ad.errLog, ErrorEntry{
		Timestamp: time.Now(),
		Message:   message,
		Kind:      kind,
		Context:   context,
	})
	ad.logger.Error("agent error recorded", slog.String("kind", kind), slog.String("error", message))
}

// CurrentStatus returns the adapter's lifecycle state.
func (ad *Adapter) CurrentStatus() Status {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	return ad.status
}

// StatusSnapshot returns a consistent copy of the adapter's state.
func (ad *Adapter) StatusSnapshot() Snapshot {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	var duration time.Duration
	if !ad.startTime.IsZero() && !ad.endTime.IsZero() {
		duration = ad.endTime.Sub(ad.startTime)
	}

	errs := make([]ErrorEntry, len(ad.errLog))
	copy(errs, ad.errLog)

	return Snapshot{
		Name:     ad.agent.Name(),
		Status:   ad.status,
		Errors:   errs,
		Duration: duration,
		Metrics:  ad.metricsLocked(),
	}
}

// Metrics returns the rolling execution metrics with derived rates.
func (ad *Adapter) Metrics() Metrics {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	return ad.metricsLocked()
}

// metricsLocked derives rates. Callers hold ad.mu.
func (ad *Adapter) metricsLocked() Metrics {
	m := Metrics{
		ExecutionCount: ad.executionCount,
		SuccessCount:   ad.successCount,
		FailureCount:   ad.failureCount,
		TotalDuration:  ad.totalDuration,
		LastExecution:  ad.lastExecution,
	}
	if ad.executionCount > 0 {
		m.AverageDuration = time.Duration(int64(ad.totalDuration) / ad.executionCount)
		m.SuccessRate = float64(ad.successCount) / float64(ad.executionCount)
		m.FailureRate = float64(ad.failureCount) / float64(ad.executionCount)
	}
	return m
}

// Reset clears the adapter's lifecycle state so a failed agent can run
// again. Rolling metrics survive a reset; the breaker does not.
func (ad *Adapter) Reset() {
	ad.mu.Lock()
	ad.status = StatusIdle
	ad.errLog = nil
	ad.startTime = time.Time{}
	ad.endTime = time.Time{}
	ad.mu.Unlock()

	ad.breaker.Reset()
}

// Close releases the adapter: deregisters its health check and resets
// state. Safe to call regardless of how the preceding execution ended.
func (ad *Adapter) Close() error {
	if ad.health != nil {
		ad.health.Deregister(ad.agent.Name() + "_agent_health")
	}
	ad.Reset()
	ad.logger.Info("agent adapter closed")
	return nil
}

// keysOf lists a payload's keys for error context without copying the
// values themselves (payloads can be large).
func keysOf(input Input) []string {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	return keys
}
