// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator drives the DevSecOps pipeline: it sequences the
// stage agents, threads each stage's output into the next stage's input,
// persists every lifecycle transition, retries failures with exponential
// backoff, and rolls back failed deployments.
//
// # Execution Modes
//
// Sequential mode runs the stages one after another. Parallel mode keeps
// the same stage order but fans out independent stages at the same
// pipeline depth (testing + governance after a successful deploy, then
// observability + optimization) inside a bounded worker pool.
//
// # Thread Safety
//
// One Orchestrator runs one pipeline at a time; progress and status
// queries are safe to call concurrently with a running pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianFlow/services/llm"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/agent"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/config"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/observability"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/resilience"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/store"
)

const tracerName = "aleutianflow/pipeline"

// PipelineExecutionError reports a stage that failed after exhausting
// its retry budget, aborting the run.
type PipelineExecutionError struct {
	Stage string
	RunID int64
	Err   error
}

func (e *PipelineExecutionError) Error() string {
	return fmt.Sprintf("pipeline run %d failed at stage %q: %v", e.RunID, e.Stage, e.Err)
}

func (e *PipelineExecutionError) Unwrap() error { return e.Err }

// Options carries the orchestrator's optional collaborators.
type Options struct {
	// LLM generates free-text recommendations in the run summary. May
	// be nil; summaries then carry a placeholder.
	LLM llm.Client

	// Metrics receives run/stage/retry/rollback counters. May be nil.
	Metrics *observability.PipelineMetrics

	// Health is the registry agent adapters register their checks in.
	// May be nil.
	Health *resilience.HealthRegistry

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// SkipResourceChecks disables host memory/disk pre-checks on the
	// agent adapters. Intended for tests.
	SkipResourceChecks bool
}

// Orchestrator coordinates one pipeline of agents over a persistence
// store.
type Orchestrator struct {
	cfg     config.Pipeline
	store   *store.Store
	llm     llm.Client
	metrics *observability.PipelineMetrics
	logger  *slog.Logger
	tracer  trace.Tracer

	order    []string
	adapters map[string]*agent.Adapter

	// backoff sleeps between retry attempts; replaced in tests.
	backoff func(ctx context.Context, d time.Duration) error

	mu               sync.Mutex
	currentRunID     int64
	lastDeploymentID int64
}

// New builds an orchestrator over the given agents, preserving their
// order as the stage order.
func New(cfg config.Pipeline, st *store.Store, agents []agent.Agent, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		cfg:      cfg,
		store:    st,
		llm:      opts.LLM,
		metrics:  opts.Metrics,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		adapters: make(map[string]*agent.Adapter, len(agents)),
		backoff:  sleepContext,
	}

	adapterCfg := agent.Config{
		Timeout:            cfg.AgentTimeout,
		SkipResourceChecks: opts.SkipResourceChecks,
	}
	for _, a := range agents {
		o.order = append(o.order, a.Name())
		o.adapters[a.Name()] = agent.NewAdapter(a, adapterCfg, opts.Health, logger)
	}

	return o
}

// StageOrder returns the registered stage names in execution order.
func (o *Orchestrator) StageOrder() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// CurrentRunID returns the run the orchestrator is executing (or last
// executed), 0 if none.
func (o *Orchestrator) CurrentRunID() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentRunID
}

// Close releases every agent adapter.
func (o *Orchestrator) Close() error {
	for _, ad := range o.adapters {
		ad.Close()
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spanAttrs builds the common span attributes for one stage execution.
func spanAttrs(runID int64, stage string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("pipeline.run_id", runID),
		attribute.String("pipeline.stage", stage),
	}
}

// newSessionID tags a run's log lines and results blob.
func newSessionID() string {
	return uuid.NewString()
}
