// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pipeline.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestRun(t *testing.T, s *Store) int64 {
	t.Helper()
	runID, err := s.CreateRun(context.Background(), "demo-api", "go", "https://example.com/demo-api.git",
		map[string]any{"parallel_execution": false}, "ci", []string{"nightly"})
	require.NoError(t, err)
	return runID
}

func TestStore_CreateAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID := createTestRun(t, s)
	require.Greater(t, runID, int64(0))

	run, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "demo-api", run.ProjectName)
	assert.Equal(t, RunPending, run.Status)
	assert.Equal(t, false, run.Config["parallel_execution"])
	assert.Equal(t, []string{"nightly"}, run.Tags)
	assert.Equal(t, "ci", run.UserID)
	assert.Nil(t, run.StartedAt)
	assert.Nil(t, run.CompletedAt)
}

func TestStore_GetRunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := createTestRun(t, s)

	require.NoError(t, s.UpdateRun(ctx, runID, RunRunning, RunUpdate{}))
	run, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, RunRunning, run.Status)
	require.NotNil(t, run.StartedAt)
	firstStart := *run.StartedAt

	// A second transition to running must not restamp started_at.
	require.NoError(t, s.UpdateRun(ctx, runID, RunRunning, RunUpdate{}))
	run, err = s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, firstStart, *run.StartedAt)

	require.NoError(t, s.UpdateRun(ctx, runID, RunCompleted, RunUpdate{
		Results: map[string]any{"status": "success"},
	}))
	run, err = s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, run.Status)
	assert.NotNil(t, run.CompletedAt)
	assert.NotNil(t, run.Duration)
	assert.Equal(t, "success", run.Results["status"])
}

func TestStore_TerminalStatesAreAbsorbing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := createTestRun(t, s)

	require.NoError(t, s.UpdateRun(ctx, runID, RunCompleted, RunUpdate{}))

	err := s.UpdateRun(ctx, runID, RunRunning, RunUpdate{})
	require.ErrorIs(t, err, ErrTerminalState)

	err = s.UpdateRun(ctx, runID, RunFailed, RunUpdate{ErrorMessage: "late failure"})
	require.ErrorIs(t, err, ErrTerminalState)

	run, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, run.Status)
	assert.Empty(t, run.ErrorMessage)
}

func TestStore_RunFailureRecordsError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := createTestRun(t, s)

	require.NoError(t, s.UpdateRun(ctx, runID, RunFailed, RunUpdate{
		ErrorMessage: "agni agent failed: docker daemon unreachable",
	}))

	run, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "docker daemon unreachable")
}

func TestStore_ExecutionLifecycleWithRetries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := createTestRun(t, s)

	execID, err := s.CreateExecution(ctx, runID, "agni", "build", map[string]any{"language": "go"}, 3)
	require.NoError(t, err)

	exec, err := s.GetExecution(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, ExecPending, exec.Status)
	assert.Equal(t, 0, exec.RetryCount)
	assert.Equal(t, 3, exec.MaxRetries)

	// First attempt fails; record the retry.
	require.NoError(t, s.UpdateExecution(ctx, execID, ExecRunning, ExecUpdate{}))
	require.NoError(t, s.UpdateExecution(ctx, execID, ExecRetrying, ExecUpdate{
		ErrorMessage:   "transient build failure",
		IncrementRetry: true,
	}))

	exec, err = s.GetExecution(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, ExecRetrying, exec.Status)
	assert.Equal(t, 1, exec.RetryCount)

	// Second attempt succeeds.
	require.NoError(t, s.UpdateExecution(ctx, execID, ExecRunning, ExecUpdate{}))
	require.NoError(t, s.UpdateExecution(ctx, execID, ExecCompleted, ExecUpdate{
		Output: map[string]any{"image": "demo-api:latest"},
	}))

	exec, err = s.GetExecution(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, ExecCompleted, exec.Status)
	assert.Equal(t, 1, exec.RetryCount)
	assert.Equal(t, "demo-api:latest", exec.OutputData["image"])
	assert.NotNil(t, exec.CompletedAt)
	assert.NotNil(t, exec.Duration)
}

func TestStore_ExecutionsForRunOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := createTestRun(t, s)

	for _, name := range []string{"varuna", "agni", "yama"} {
		_, err := s.CreateExecution(ctx, runID, name, "stage", map[string]any{}, 3)
		require.NoError(t, err)
	}

	execs, err := s.ExecutionsForRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, execs, 3)
	assert.Equal(t, "varuna", execs[0].AgentName)
	assert.Equal(t, "agni", execs[1].AgentName)
	assert.Equal(t, "yama", execs[2].AgentName)
}

func TestStore_FindingsAndSecuritySummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := createTestRun(t, s)

	findings := []SecurityFinding{
		{PipelineRunID: runID, Severity: "critical", Category: "sast", Title: "SQL injection"},
		{PipelineRunID: runID, Severity: "low", Category: "sca", Title: "outdated dependency"},
		{PipelineRunID: runID, Title: "untagged"}, // defaults to medium/unknown
	}
	for _, f := range findings {
		require.NoError(t, s.AddFinding(ctx, f))
	}

	got, err := s.FindingsForRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "medium", got[2].Severity)
	assert.Equal(t, "unknown", got[2].Category)
	assert.Equal(t, "open", got[0].Status)

	summary, err := s.SecuritySummaryForRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalFindings)
	assert.Equal(t, 3, summary.OpenFindings)
	assert.Equal(t, 1, summary.FindingsBySeverity["critical"])
	// critical(10) + low(1) + medium(2) = 13 -> 75 band.
	assert.Equal(t, 75, summary.SecurityScore)
}

func TestSecurityScoreBands(t *testing.T) {
	tests := []struct {
		name       string
		bySeverity map[string]int
		want       int
	}{
		{"no findings", map[string]int{}, 100},
		{"weight at most five", map[string]int{"high": 1}, 90},
		{"weight at most fifteen", map[string]int{"critical": 1, "high": 1}, 75},
		{"weight at most thirty", map[string]int{"critical": 3}, 50},
		{"weight above thirty", map[string]int{"critical": 4}, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, securityScore(tt.bySeverity))
		})
	}
}

func TestStore_MetricsAndSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := createTestRun(t, s)

	for _, v := range []float64{100, 200, 300} {
		require.NoError(t, s.AddMetric(ctx, PerformanceMetric{
			PipelineRunID: runID,
			Name:          "response_time",
			Value:         v,
			Unit:          "ms",
		}))
	}

	metrics, err := s.PerformanceSummaryForRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, "response_time", metrics[0].Name)
	assert.Equal(t, 200.0, metrics[0].Average)
	assert.Equal(t, 100.0, metrics[0].Min)
	assert.Equal(t, 300.0, metrics[0].Max)
	assert.Equal(t, 3, metrics[0].Count)
}

func TestStore_DeploymentRollback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := createTestRun(t, s)

	depID, err := s.RecordDeployment(ctx, Deployment{
		PipelineRunID: runID,
		Environment:   "staging",
		Type:          "kubernetes",
		Status:        "deployed",
		EndpointURL:   "https://staging.example.com",
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkRolledBack(ctx, depID, map[string]any{"reason": "health check failed"}))
	assert.ErrorIs(t, s.MarkRolledBack(ctx, 9999, nil), ErrNotFound)
}

func TestStore_History(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run1 := createTestRun(t, s)
	run2 := createTestRun(t, s)
	require.NoError(t, s.UpdateRun(ctx, run1, RunFailed, RunUpdate{ErrorMessage: "boom"}))
	require.NoError(t, s.UpdateRun(ctx, run2, RunCompleted, RunUpdate{}))

	all, err := s.History(ctx, HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Newest first.
	assert.Equal(t, run2, all[0].ID)

	failed, err := s.History(ctx, HistoryFilter{Status: RunFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, run1, failed[0].ID)

	none, err := s.History(ctx, HistoryFilter{UserID: "someone-else"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_Statistics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run1 := createTestRun(t, s)
	run2 := createTestRun(t, s)
	run3 := createTestRun(t, s)
	require.NoError(t, s.UpdateRun(ctx, run1, RunCompleted, RunUpdate{}))
	require.NoError(t, s.UpdateRun(ctx, run2, RunFailed, RunUpdate{ErrorMessage: "boom"}))

	// Push one run outside the window.
	_, err := s.DB().ExecContext(ctx,
		"UPDATE pipeline_runs SET created_at = datetime('now', '-60 days') WHERE id = ?", run3)
	require.NoError(t, err)

	agg, err := s.Statistics(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), agg.TotalRuns)
	assert.Equal(t, int64(1), agg.SuccessfulRuns)
	assert.Equal(t, int64(1), agg.FailedRuns)
	require.NotNil(t, agg.AvgDuration)
	assert.GreaterOrEqual(t, *agg.AvgDuration, 0.0)
}

func TestStore_StatisticsEmptyWindow(t *testing.T) {
	s := openTestStore(t)

	agg, err := s.Statistics(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), agg.TotalRuns)
	assert.Nil(t, agg.AvgDuration)
	assert.Nil(t, agg.MaxDuration)
	assert.Nil(t, agg.MinDuration)
}

func TestStore_CleanupCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := createTestRun(t, s)

	execID, err := s.CreateExecution(ctx, runID, "yama", "security", map[string]any{}, 3)
	require.NoError(t, err)
	require.NoError(t, s.AddFinding(ctx, SecurityFinding{
		PipelineRunID: runID, AgentExecutionID: &execID,
		Severity: "high", Category: "sast", Title: "hardcoded secret",
	}))
	require.NoError(t, s.AddMetric(ctx, PerformanceMetric{
		PipelineRunID: runID, Name: "cpu", Value: 0.5,
	}))

	// Backdate the run so retention catches it.
	_, err = s.DB().ExecContext(ctx,
		"UPDATE pipeline_runs SET created_at = datetime('now', '-60 days') WHERE id = ?", runID)
	require.NoError(t, err)

	deleted, err := s.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.GetRun(ctx, runID)
	assert.ErrorIs(t, err, ErrNotFound)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats["agent_executions_count"])
	assert.Equal(t, int64(0), stats["security_findings_count"])
	assert.Equal(t, int64(0), stats["performance_metrics_count"])
}

func TestStore_UpdateMissingRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.UpdateRun(ctx, 123, RunRunning, RunUpdate{})
	assert.True(t, errors.Is(err, ErrNotFound))

	err = s.UpdateExecution(ctx, 123, ExecRunning, ExecUpdate{})
	assert.True(t, errors.Is(err, ErrNotFound))
}
