// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resilience provides the fault-tolerance primitives used around
// pipeline agent execution: circuit breaker, retry with backoff, deadline,
// bulkhead, and a health-check registry.
//
// All primitives are plain constructed objects. Nothing in this package is
// a process-wide singleton; callers own the lifetime of every breaker and
// registry they create, which keeps state out of unrelated tests.
package resilience

import (
	"context"
	"sync"
	"time"
)

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	// CircuitClosed is normal operation - calls pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many failures - calls are rejected.
	CircuitOpen
	// CircuitHalfOpen is testing recovery - a single probe call is allowed.
	CircuitHalfOpen
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// breaker opens (default: 5).
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays open before allowing
	// a probe call through (default: 60s).
	RecoveryTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// CircuitBreakerStats contains circuit breaker statistics.
type CircuitBreakerStats struct {
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	TotalCalls      int64     `json:"total_calls"`
	TotalFailures   int64     `json:"total_failures"`
	TotalRejections int64     `json:"total_rejections"`
	LastFailure     time.Time `json:"last_failure"`
}

// CircuitBreaker stops calling a repeatedly-failing operation for a
// cooldown period.
//
// State machine:
//
//   - Closed: calls pass through. FailureThreshold consecutive failures
//     transition to Open.
//   - Open: calls fail immediately with ErrCircuitOpen until
//     RecoveryTimeout has elapsed since the last failure.
//   - Half-open: exactly one probe call is allowed through. Success closes
//     the breaker; failure reopens it.
//
// Breaker state is in-memory only and resets on process restart.
//
// Thread Safety: safe for concurrent use.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
	probing     bool

	totalCalls      int64
	totalFailures   int64
	totalRejections int64
}

// NewCircuitBreaker creates a circuit breaker with the given config.
// Zero-valued config fields fall back to defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = def.RecoveryTimeout
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow decides whether a call may proceed. It returns the caller's role:
// a normal call, a half-open probe, or a rejection.
func (cb *CircuitBreaker) allow() (proceed bool, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++

	switch cb.state {
	case CircuitClosed:
		return true, false

	case CircuitOpen:
		if time.Since(cb.lastFailure) >= cb.config.RecoveryTimeout {
			cb.state = CircuitHalfOpen
			cb.probing = true
			return true, true
		}
		cb.totalRejections++
		return false, false

	case CircuitHalfOpen:
		// Only one probe at a time; concurrent callers are rejected
		// until the probe resolves.
		if cb.probing {
			cb.totalRejections++
			return false, false
		}
		cb.probing = true
		return true, true
	}

	cb.totalRejections++
	return false, false
}

// recordSuccess resets the breaker to closed.
func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probing = false
	cb.state = CircuitClosed
}

// recordFailure counts a failure and opens the breaker at the threshold.
func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.failures++
	cb.lastFailure = time.Now()

	if cb.state == CircuitHalfOpen {
		cb.probing = false
		cb.state = CircuitOpen
		return
	}
	if cb.failures >= cb.config.FailureThreshold {
		cb.state = CircuitOpen
	}
}

// Call invokes op under circuit breaker protection.
//
// Inputs:
//
//	ctx - Context passed through to op.
//	op - The protected operation.
//
// Outputs:
//
//	error - ErrCircuitOpen if the call was rejected without invoking op,
//	otherwise the error from op (nil on success).
func (cb *CircuitBreaker) Call(ctx context.Context, op func(context.Context) error) error {
	proceed, _ := cb.allow()
	if !proceed {
		return ErrCircuitOpen
	}

	if err := op(ctx); err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

// Stats returns a snapshot of breaker counters.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		State:           cb.state.String(),
		FailureCount:    cb.failures,
		TotalCalls:      cb.totalCalls,
		TotalFailures:   cb.totalFailures,
		TotalRejections: cb.totalRejections,
		LastFailure:     cb.lastFailure,
	}
}

// Reset returns the breaker to the closed state and clears counters
// accumulated toward the failure threshold.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.probing = false
}
