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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half_open"},
		{CircuitState(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.config.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cb.config.FailureThreshold)
	}
	if cb.config.RecoveryTimeout != 60*time.Second {
		t.Errorf("RecoveryTimeout = %v, want 60s", cb.config.RecoveryTimeout)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Hour,
	})
	ctx := context.Background()

	fail := func(context.Context) error { return errBoom }

	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: err = %v, want errBoom", i+1, err)
		}
	}

	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	// The next call must be rejected without invoking the operation.
	invoked := false
	err := cb.Call(ctx, func(context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if invoked {
		t.Error("operation invoked while breaker open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Hour,
	})
	ctx := context.Background()

	// Two failures, then a success, then two more failures: the breaker
	// must stay closed because failures are not consecutive.
	cb.Call(ctx, func(context.Context) error { return errBoom })
	cb.Call(ctx, func(context.Context) error { return errBoom })
	cb.Call(ctx, func(context.Context) error { return nil })
	cb.Call(ctx, func(context.Context) error { return errBoom })
	cb.Call(ctx, func(context.Context) error { return errBoom })

	if cb.State() != CircuitClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenSingleProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  20 * time.Millisecond,
	})
	ctx := context.Background()

	cb.Call(ctx, func(context.Context) error { return errBoom })
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(30 * time.Millisecond)

	// Many concurrent callers after the recovery timeout: exactly one
	// probe is allowed through.
	var invocations atomic.Int64
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.Call(ctx, func(context.Context) error {
				invocations.Add(1)
				<-release
				return nil
			})
		}()
	}

	time.Sleep(30 * time.Millisecond)
	if got := invocations.Load(); got != 1 {
		t.Errorf("invocations while half-open = %d, want 1", got)
	}
	close(release)
	wg.Wait()

	if cb.State() != CircuitClosed {
		t.Errorf("state after probe success = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
	})
	ctx := context.Background()

	cb.Call(ctx, func(context.Context) error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	if err := cb.Call(ctx, func(context.Context) error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("probe err = %v, want errBoom", err)
	}
	if cb.State() != CircuitOpen {
		t.Errorf("state after failed probe = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})
	ctx := context.Background()

	cb.Call(ctx, func(context.Context) error { return errBoom })
	cb.Reset()

	if cb.State() != CircuitClosed {
		t.Errorf("state after Reset = %v, want closed", cb.State())
	}
	if err := cb.Call(ctx, func(context.Context) error { return nil }); err != nil {
		t.Errorf("err after Reset = %v, want nil", err)
	}
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})
	ctx := context.Background()

	cb.Call(ctx, func(context.Context) error { return errBoom })
	cb.Call(ctx, func(context.Context) error { return nil }) // rejected

	stats := cb.Stats()
	if stats.State != "open" {
		t.Errorf("State = %s, want open", stats.State)
	}
	if stats.TotalCalls != 2 {
		t.Errorf("TotalCalls = %d, want 2", stats.TotalCalls)
	}
	if stats.TotalFailures != 1 {
		t.Errorf("TotalFailures = %d, want 1", stats.TotalFailures)
	}
	if stats.TotalRejections != 1 {
		t.Errorf("TotalRejections = %d, want 1", stats.TotalRejections)
	}
}
