// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianFlow/services/pipeline/agent"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/stages"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/store"
)

// resultKeys maps stage names to the keys they occupy in the results
// blob. Stages not listed use their own name.
var resultKeys = map[string]string{
	stages.StageVaruna:    "code_analysis",
	stages.StageAgni:      "build",
	stages.StageYama:      "security",
	stages.StageTerraform: "provision",
	stages.StageVayu:      "deployment",
	stages.StageHanuman:   "testing",
	stages.StageKrishna:   "governance",
}

func resultKey(stage string) string {
	if k, ok := resultKeys[stage]; ok {
		return k
	}
	return stage
}

// depthGroup is one depth level of the pipeline: the stages that may run
// concurrently at that level in parallel mode.
type depthGroup struct {
	names []string

	// pooled forces the group through the worker pool even when it
	// holds a single stage today.
	pooled bool

	// requiresDeploy skips the group unless the deploy stage succeeded.
	requiresDeploy bool

	// requiresDeployInParallel skips the group in parallel mode when the
	// deploy stage ran and did not succeed. Sequential mode still runs
	// it so governance can record the rejection.
	requiresDeployInParallel bool
}

// pipelineDepths is the canonical stage layout. Sequential mode flattens
// it; parallel mode fans out within each group.
var pipelineDepths = []depthGroup{
	{names: []string{stages.StageVaruna}},
	{names: []string{stages.StageAgni}},
	{names: []string{stages.StageYama}, pooled: true},
	{names: []string{stages.StageTerraform}},
	{names: []string{stages.StageVayu}},
	{names: []string{stages.StageHanuman, stages.StageKrishna}, requiresDeployInParallel: true},
	{names: []string{stages.StageObservability, stages.StageOptimization}, requiresDeploy: true},
}

// ExecutePipeline runs the full stage sequence for one project
// submission and returns the per-stage results map. The error return is
// non-nil only for unrecoverable failures; a blocked deployment or a
// governance rejection still completes the run.
func (o *Orchestrator) ExecutePipeline(ctx context.Context, projectData map[string]any) (map[string]any, error) {
	sessionID := newSessionID()
	mode := "sequential"
	if o.cfg.ParallelExecution {
		mode = "parallel"
	}

	runID, err := o.store.CreateRun(ctx,
		extractProjectName(projectData),
		stringOr(projectData, "type", "unknown"),
		stringOr(projectData, "url", ""),
		map[string]any{
			"parallel_execution":  o.cfg.ParallelExecution,
			"max_parallel_agents": o.cfg.MaxParallelAgents,
			"max_retries":         o.cfg.MaxRetries,
			"auto_rollback":       o.cfg.AutoRollback,
		},
		o.cfg.UserID, o.cfg.Tags)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.currentRunID = runID
	o.lastDeploymentID = 0
	o.mu.Unlock()

	// A failed agent from a previous run must not poison this one.
	for _, ad := range o.adapters {
		ad.Reset()
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.execute")
	span.SetAttributes(spanAttrs(runID, mode)...)
	defer span.End()

	logger := o.logger.With("run_id", runID, "session_id", sessionID, "mode", mode)
	logger.Info("pipeline run starting")

	if err := o.store.UpdateRun(ctx, runID, store.RunRunning, store.RunUpdate{}); err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.ActiveRuns.Inc()
		defer o.metrics.ActiveRuns.Dec()
	}

	started := time.Now()
	input := map[string]any{
		"project_data": projectData,
		"timestamp":    started.UTC().Format(time.RFC3339),
	}

	results, err := o.executeDepths(ctx, runID, input)

	elapsed := time.Since(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("pipeline run failed", "error", err, "duration", elapsed)

		if dbErr := o.store.UpdateRun(ctx, runID, store.RunFailed, store.RunUpdate{
			ErrorMessage: fmt.Sprintf("Pipeline execution failed: %v", err),
		}); dbErr != nil {
			logger.Error("failed to persist run failure", "error", dbErr)
		}
		if o.metrics != nil {
			o.metrics.RecordRun(mode, store.RunFailed, elapsed.Seconds())
		}
		return nil, err
	}

	results["summary"] = o.generateSummary(ctx, runID, results)
	results["session_id"] = sessionID

	if err := o.store.UpdateRun(ctx, runID, store.RunCompleted, store.RunUpdate{Results: results}); err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.RecordRun(mode, store.RunCompleted, elapsed.Seconds())
	}

	logger.Info("pipeline run completed", "duration", elapsed)
	return results, nil
}

// executeDepths walks the depth groups in order, threading the merged
// context forward. Only stages with a registered agent run; unregistered
// stages in a group are skipped, so a trimmed-down pipeline (e.g. in
// tests) still flows correctly.
//
// In sequential mode every group degrades to in-order execution. In
// parallel mode multi-stage groups fan out in the bounded pool: each
// stage of a group receives the same pre-group context snapshot (so
// governance never sees testing's output, a documented limitation), and
// the group's outputs merge forward only after every member finishes.
func (o *Orchestrator) executeDepths(ctx context.Context, runID int64, input map[string]any) (map[string]any, error) {
	results := map[string]any{}
	deployOK := false

	for _, group := range pipelineDepths {
		var names []string
		for _, n := range group.names {
			if _, ok := o.adapters[n]; ok {
				names = append(names, n)
			}
		}
		if len(names) == 0 {
			continue
		}
		if group.requiresDeploy && !deployOK {
			continue
		}
		if group.requiresDeployInParallel && o.cfg.ParallelExecution && !deployOK {
			if _, vayuRegistered := o.adapters[stages.StageVayu]; vayuRegistered {
				continue
			}
		}

		parallel := o.cfg.ParallelExecution && (len(names) > 1 || group.pooled)
		outputs, err := o.executeGroup(ctx, runID, names, input, parallel)
		if err != nil {
			return nil, err
		}

		for _, name := range names {
			out := outputs[name]
			results[resultKey(name)] = out
			if name == stages.StageVayu {
				deployOK = deploySucceeded(out)
				o.recordDeployment(ctx, runID, out)
			}
			input = merge(input, out)
		}
	}

	return results, nil
}

// executeGroup runs one depth level, either in order or fanned out.
func (o *Orchestrator) executeGroup(ctx context.Context, runID int64, names []string, input map[string]any, parallel bool) (map[string]agent.Output, error) {
	outputs := make(map[string]agent.Output, len(names))

	if !parallel {
		for _, name := range names {
			out, err := o.executeStage(ctx, runID, name, input)
			if err != nil {
				return nil, err
			}
			outputs[name] = out
			input = merge(input, out)
		}
		return outputs, nil
	}

	// The pool blocks submission past its bound rather than failing,
	// and it does not cancel siblings on error: concurrent stages must
	// each reach their own persisted terminal state.
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxParallelAgents)

	type stageResult struct {
		name string
		out  agent.Output
	}
	resultCh := make(chan stageResult, len(names))

	for _, name := range names {
		name := name
		stageInput := merge(input, nil)
		g.Go(func() error {
			out, err := o.executeStage(ctx, runID, name, stageInput)
			if err != nil {
				return err
			}
			resultCh <- stageResult{name: name, out: out}
			return nil
		})
	}
	err := g.Wait()
	close(resultCh)
	for r := range resultCh {
		outputs[r.name] = r.out
	}
	if err != nil {
		return nil, err
	}
	return outputs, nil
}

// executeStage invokes one named agent with persistence and retry.
//
// The lifecycle per attempt is running -> completed, or running ->
// retrying with a 2^n second backoff. After the budget is exhausted the
// execution is marked failed, rollback is attempted when configured,
// and a PipelineExecutionError aborts the run.
func (o *Orchestrator) executeStage(ctx context.Context, runID int64, name string, input agent.Input) (agent.Output, error) {
	ad, ok := o.adapters[name]
	if !ok {
		return nil, &PipelineExecutionError{
			Stage: name,
			RunID: runID,
			Err:   fmt.Errorf("agent not available"),
		}
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.stage."+name)
	span.SetAttributes(spanAttrs(runID, name)...)
	defer span.End()

	execID, err := o.store.CreateExecution(ctx, runID, name, fmt.Sprintf("%T", ad.Unwrap()), input, o.cfg.MaxRetries)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	retryCount := 0
	for {
		if err := o.store.UpdateExecution(ctx, execID, store.ExecRunning, store.ExecUpdate{}); err != nil {
			return nil, err
		}

		output, execErr := ad.Execute(ctx, input)
		if execErr == nil {
			if err := o.store.UpdateExecution(ctx, execID, store.ExecCompleted, store.ExecUpdate{Output: output}); err != nil {
				return nil, err
			}
			o.persistStageRecords(ctx, runID, execID, output)
			if o.metrics != nil {
				o.metrics.RecordStage(name, store.ExecCompleted, time.Since(started).Seconds())
			}
			o.logger.Info("stage completed", "run_id", runID, "stage", name, "retries", retryCount)
			return output, nil
		}

		retryCount++
		errMsg := fmt.Sprintf("Agent %s failed (attempt %d): %v", name, retryCount, execErr)
		o.logger.Error("stage attempt failed", "run_id", runID, "stage", name, "attempt", retryCount, "error", execErr)

		if retryCount <= o.cfg.MaxRetries {
			if err := o.store.UpdateExecution(ctx, execID, store.ExecRetrying, store.ExecUpdate{
				ErrorMessage:   errMsg,
				IncrementRetry: true,
			}); err != nil {
				return nil, err
			}
			if o.metrics != nil {
				o.metrics.RecordRetry(name)
			}

			// The adapter latches into failed after an error; clear it
			// so the next attempt is admitted.
			ad.Reset()

			if err := o.backoff(ctx, time.Duration(1<<retryCount)*time.Second); err != nil {
				return nil, err
			}
			continue
		}

		if err := o.store.UpdateExecution(ctx, execID, store.ExecFailed, store.ExecUpdate{ErrorMessage: errMsg}); err != nil {
			o.logger.Error("failed to persist stage failure", "error", err)
		}
		if o.metrics != nil {
			o.metrics.RecordStage(name, store.ExecFailed, time.Since(started).Seconds())
		}
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())

		if o.cfg.AutoRollback {
			o.handleRollback(ctx, runID, name)
		}

		return nil, &PipelineExecutionError{Stage: name, RunID: runID, Err: execErr}
	}
}

// persistStageRecords extracts the conventional child-record keys from a
// stage's output. Extraction failures are logged, never escalated: the
// stage itself succeeded.
func (o *Orchestrator) persistStageRecords(ctx context.Context, runID, execID int64, output agent.Output) {
	if findings, ok := output["security_findings"].([]any); ok {
		for _, entry := range findings {
			f, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			err := o.store.AddFinding(ctx, store.SecurityFinding{
				PipelineRunID:    runID,
				AgentExecutionID: &execID,
				Severity:         stringOr(f, "severity", ""),
				Category:         stringOr(f, "category", ""),
				Title:            stringOr(f, "title", ""),
				Description:      stringOr(f, "description", ""),
				FilePath:         stringOr(f, "file_path", ""),
				RuleID:           stringOr(f, "rule_id", ""),
				Remediation:      stringOr(f, "remediation", ""),
			})
			if err != nil {
				o.logger.Error("failed to persist finding", "run_id", runID, "error", err)
			}
		}
	}

	if metrics, ok := output["performance_metrics"].([]any); ok {
		for _, entry := range metrics {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			value, _ := m["value"].(float64)
			err := o.store.AddMetric(ctx, store.PerformanceMetric{
				PipelineRunID:    runID,
				AgentExecutionID: &execID,
				Name:             stringOr(m, "name", ""),
				Value:            value,
				Unit:             stringOr(m, "unit", ""),
			})
			if err != nil {
				o.logger.Error("failed to persist metric", "run_id", runID, "error", err)
			}
		}
	}

	if artifacts, ok := output["artifacts"].([]any); ok {
		for _, entry := range artifacts {
			a, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			err := o.store.AddArtifact(ctx, store.BuildArtifact{
				PipelineRunID:    runID,
				AgentExecutionID: &execID,
				Type:             stringOr(a, "type", ""),
				Name:             stringOr(a, "name", ""),
				Path:             stringOr(a, "path", ""),
				Hash:             stringOr(a, "hash", ""),
			})
			if err != nil {
				o.logger.Error("failed to persist artifact", "run_id", runID, "error", err)
			}
		}
	}
}

// recordDeployment writes a deployment_history row for a successful
// deploy so a later rollback can reference it.
func (o *Orchestrator) recordDeployment(ctx context.Context, runID int64, vayuOut agent.Output) {
	if !deploySucceeded(vayuOut) {
		return
	}
	deployment, _ := vayuOut["deployment"].(map[string]any)

	id, err := o.store.RecordDeployment(ctx, store.Deployment{
		PipelineRunID: runID,
		Environment:   stringOr(deployment, "environment", "staging"),
		Type:          stringOr(deployment, "strategy", "rolling"),
		Status:        "deployed",
		EndpointURL:   stringOr(deployment, "endpoint_url", ""),
		Config:        deployment,
	})
	if err != nil {
		o.logger.Error("failed to record deployment", "run_id", runID, "error", err)
		return
	}

	o.mu.Lock()
	o.lastDeploymentID = id
	o.mu.Unlock()
}

// handleRollback invokes the deploy agent's rollback after a deploy or
// test stage failure. Best effort: the outcome is logged and counted,
// never escalated, so the original failure is what the caller sees.
func (o *Orchestrator) handleRollback(ctx context.Context, runID int64, failedStage string) {
	if failedStage != stages.StageVayu && failedStage != stages.StageHanuman {
		return
	}
	o.logger.Warn("initiating rollback", "run_id", runID, "failed_stage", failedStage)

	deployAd, ok := o.adapters[stages.StageVayu]
	if !ok {
		return
	}
	rb, ok := deployAd.Unwrap().(agent.Rollbacker)
	if !ok {
		return
	}

	result, err := rb.Rollback(ctx)
	if o.metrics != nil {
		o.metrics.RecordRollback(failedStage, err == nil)
	}
	if err != nil {
		o.logger.Error("rollback failed", "run_id", runID, "error", err)
		return
	}
	o.logger.Info("rollback completed", "run_id", runID, "result", result)

	o.mu.Lock()
	deploymentID := o.lastDeploymentID
	o.mu.Unlock()
	if deploymentID != 0 {
		info := map[string]any{"reason": fmt.Sprintf("%s stage failed", failedStage)}
		if err := o.store.MarkRolledBack(ctx, deploymentID, info); err != nil {
			o.logger.Error("failed to mark deployment rolled back", "run_id", runID, "error", err)
		}
	}
}

// merge unions base and overlay without mutating either; overlay keys
// win. Stage inputs accumulate this way down the whole chain.
func merge(base map[string]any, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func deploySucceeded(vayuOut agent.Output) bool {
	return stringOr(vayuOut, "deployment_status", "") == "success"
}

// extractProjectName derives a name from the submission: git URL
// basename, local path basename, or a timestamped fallback.
func extractProjectName(projectData map[string]any) string {
	switch stringOr(projectData, "type", "") {
	case "git":
		if url := stringOr(projectData, "url", ""); url != "" {
			return strings.TrimSuffix(path.Base(url), ".git")
		}
		return "unknown"
	case "local":
		if p := stringOr(projectData, "path", ""); p != "" {
			return path.Base(p)
		}
		return "unknown"
	default:
		return "project_" + time.Now().Format("20060102_150405")
	}
}

func stringOr(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
