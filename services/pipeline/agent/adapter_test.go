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
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianFlow/services/pipeline/resilience"
)

// scriptedAgent fails a configurable number of times before succeeding.
type scriptedAgent struct {
	name     string
	failures int
	calls    atomic.Int64
	output   Output
	err      error
}

func (s *scriptedAgent) Name() string { return s.name }

func (s *scriptedAgent) Execute(ctx context.Context, input Input) (Output, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if int(n) <= s.failures {
		return nil, fmt.Errorf("scripted failure %d", n)
	}
	if s.output != nil {
		return s.output, nil
	}
	return Output{"ok": true}, nil
}

func testConfig() Config {
	return Config{
		MaxAttempts:        3,
		Timeout:            time.Second,
		FailureThreshold:   5,
		RecoveryTimeout:    time.Minute,
		MaxConcurrent:      2,
		SkipResourceChecks: true,
	}
}

func TestAdapter_ExecuteSuccess(t *testing.T) {
	a := &scriptedAgent{name: "varuna", output: Output{"language": "go"}}
	ad := NewAdapter(a, testConfig(), nil, nil)

	out, err := ad.Execute(context.Background(), Input{"path": "/tmp/proj"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["language"] != "go" {
		t.Errorf("output = %v, want language=go", out)
	}
	if ad.CurrentStatus() != StatusCompleted {
		t.Errorf("status = %s, want completed", ad.CurrentStatus())
	}

	m := ad.Metrics()
	if m.ExecutionCount != 1 || m.SuccessCount != 1 || m.FailureCount != 0 {
		t.Errorf("metrics = %+v, want 1 execution, 1 success", m)
	}
	if m.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %f, want 1.0", m.SuccessRate)
	}
}

func TestAdapter_ExecuteFailureWrapsError(t *testing.T) {
	a := &scriptedAgent{name: "agni", err: errors.New("docker daemon unreachable")}
	ad := NewAdapter(a, testConfig(), nil, nil)

	_, err := ad.Execute(context.Background(), Input{})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want *ExecutionError", err)
	}
	if execErr.Agent != "agni" {
		t.Errorf("Agent = %s, want agni", execErr.Agent)
	}
	if ad.CurrentStatus() != StatusFailed {
		t.Errorf("status = %s, want failed", ad.CurrentStatus())
	}

	snap := ad.StatusSnapshot()
	if len(snap.Errors) == 0 {
		t.Error("error log empty, want at least one entry")
	}
}

func TestAdapter_NilOutputViolatesContract(t *testing.T) {
	ad := NewAdapter(nilOutputAgent{}, testConfig(), nil, nil)

	_, err := ad.Execute(context.Background(), Input{})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want *ExecutionError for nil output", err)
	}
}

type nilOutputAgent struct{}

func (nilOutputAgent) Name() string { return "broken" }
func (nilOutputAgent) Execute(ctx context.Context, input Input) (Output, error) {
	return nil, nil
}

func TestAdapter_FailedStateRequiresReset(t *testing.T) {
	a := &scriptedAgent{name: "vayu", err: errors.New("rollout failed")}
	ad := NewAdapter(a, testConfig(), nil, nil)

	ad.Execute(context.Background(), Input{})
	if ad.CurrentStatus() != StatusFailed {
		t.Fatalf("status = %s, want failed", ad.CurrentStatus())
	}

	// Second call is rejected before invoking the agent.
	before := a.calls.Load()
	_, err := ad.Execute(context.Background(), Input{})
	if err == nil {
		t.Fatal("Execute from failed state succeeded, want rejection")
	}
	if a.calls.Load() != before {
		t.Error("agent invoked while in failed state")
	}

	ad.Reset()
	if ad.CurrentStatus() != StatusIdle {
		t.Errorf("status after Reset = %s, want idle", ad.CurrentStatus())
	}
	a.err = nil
	if _, err := ad.Execute(context.Background(), Input{}); err != nil {
		t.Errorf("Execute after Reset: %v", err)
	}
}

func TestAdapter_ExecuteWithResilienceRetries(t *testing.T) {
	a := &scriptedAgent{name: "hanuman", failures: 2}
	cfg := testConfig()
	ad := NewAdapter(a, cfg, nil, nil)
	// Shrink backoff so the test runs quickly.
	ad.retry.BaseDelay = time.Millisecond
	ad.retry.MaxDelay = 2 * time.Millisecond

	out, err := ad.ExecuteWithResilience(context.Background(), Input{})
	if err != nil {
		t.Fatalf("ExecuteWithResilience: %v", err)
	}
	if out["ok"] != true {
		t.Errorf("output = %v, want ok=true", out)
	}
	if got := a.calls.Load(); got != 3 {
		t.Errorf("agent calls = %d, want 3", got)
	}
	if ad.CurrentStatus() != StatusCompleted {
		t.Errorf("status = %s, want completed", ad.CurrentStatus())
	}
}

func TestAdapter_ExecuteWithResilienceExhaustion(t *testing.T) {
	a := &scriptedAgent{name: "krishna", err: errors.New("always failing")}
	ad := NewAdapter(a, testConfig(), nil, nil)
	ad.retry.BaseDelay = time.Millisecond
	ad.retry.MaxDelay = 2 * time.Millisecond

	_, err := ad.ExecuteWithResilience(context.Background(), Input{"k": 1})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want *ExecutionError", err)
	}
	if execErr.Agent != "krishna" {
		t.Errorf("Agent = %s, want krishna", execErr.Agent)
	}
	if got := a.calls.Load(); got != 3 {
		t.Errorf("agent calls = %d, want 3 (retry budget)", got)
	}
}

func TestAdapter_ToolIntegrationErrorPassesThrough(t *testing.T) {
	toolErr := &ToolIntegrationError{Tool: "trivy", Err: errors.New("exit status 2")}
	a := &scriptedAgent{name: "yama", err: toolErr}
	ad := NewAdapter(a, testConfig(), nil, nil)
	ad.retry.MaxAttempts = 1

	_, err := ad.ExecuteWithResilience(context.Background(), Input{})
	var got *ToolIntegrationError
	if !errors.As(err, &got) {
		t.Fatalf("err = %v, want *ToolIntegrationError passed through", err)
	}
	if got.Tool != "trivy" {
		t.Errorf("Tool = %s, want trivy", got.Tool)
	}
}

func TestAdapter_TimeoutSurfacesAsExecutionError(t *testing.T) {
	ad := NewAdapter(stuckAgent{}, Config{
		MaxAttempts:        1,
		Timeout:            30 * time.Millisecond,
		MaxConcurrent:      1,
		SkipResourceChecks: true,
	}, nil, nil)

	_, err := ad.ExecuteWithResilience(context.Background(), Input{})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want *ExecutionError", err)
	}
	var te *resilience.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("cause = %v, want *TimeoutError", err)
	}
}

type stuckAgent struct{}

func (stuckAgent) Name() string { return "stuck" }
func (stuckAgent) Execute(ctx context.Context, input Input) (Output, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAdapter_HealthCheckRegistration(t *testing.T) {
	reg := resilience.NewHealthRegistry(nil)
	a := &scriptedAgent{name: "varuna"}
	ad := NewAdapter(a, testConfig(), reg, nil)

	result, err := reg.Run(context.Background(), "varuna_agent_health")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != resilience.HealthHealthy {
		t.Errorf("Status = %s, want healthy", result.Status)
	}

	// Close deregisters the check.
	ad.Close()
	if _, err := reg.Run(context.Background(), "varuna_agent_health"); err == nil {
		t.Error("health check still registered after Close")
	}
}

func TestAdapter_CloseResetsState(t *testing.T) {
	a := &scriptedAgent{name: "agni", err: errors.New("nope")}
	ad := NewAdapter(a, testConfig(), nil, nil)

	ad.Execute(context.Background(), Input{})
	if err := ad.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ad.CurrentStatus() != StatusIdle {
		t.Errorf("status after Close = %s, want idle", ad.CurrentStatus())
	}
}

func TestAdapter_MetricsSurviveReset(t *testing.T) {
	a := &scriptedAgent{name: "opt"}
	ad := NewAdapter(a, testConfig(), nil, nil)

	ad.Execute(context.Background(), Input{})
	ad.Reset()

	if got := ad.Metrics().ExecutionCount; got != 1 {
		t.Errorf("ExecutionCount after Reset = %d, want 1", got)
	}
}
