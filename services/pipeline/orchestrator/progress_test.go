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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianFlow/services/pipeline/agent"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/stages"
)

func TestProgress_BeforeAnyRun(t *testing.T) {
	o, _ := newTestOrchestrator(t, testPipelineConfig(), stages.Pipeline(), nil)

	p, err := o.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Not started", p.CurrentStage)
	assert.Zero(t, p.Percentage)
	assert.Empty(t, p.Logs)

	status, err := o.AgentStatus(context.Background(), stages.StageVaruna)
	require.NoError(t, err)
	assert.Equal(t, "info", status.Type)
	assert.Equal(t, "Pipeline not started", status.Message)
}

func TestProgress_CompletedRun(t *testing.T) {
	o, _ := newTestOrchestrator(t, testPipelineConfig(), stages.Pipeline(), nil)

	ctx := context.Background()
	_, err := o.ExecutePipeline(ctx, localProject(nil))
	require.NoError(t, err)

	p, err := o.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Percentage)
	assert.Equal(t, 9, p.CompletedAgents)
	assert.Equal(t, 9, p.TotalAgents)
	assert.Equal(t, "completed", p.Status)
	assert.Equal(t, "Completed", p.CurrentStage)
	assert.NotEmpty(t, p.Logs)

	// Logs are newest first: optimization finished last.
	assert.Contains(t, p.Logs[0].Message, "Optimization agent")
	assert.Equal(t, "INFO", p.Logs[0].Level)

	status, err := o.AgentStatus(ctx, stages.StageVaruna)
	require.NoError(t, err)
	assert.Equal(t, "success", status.Type)
	assert.Equal(t, "Completed", status.Message)
}

func TestProgress_FailedRun(t *testing.T) {
	analysis := &stubStage{name: stages.StageVaruna}
	build := &stubStage{name: stages.StageAgni, failures: 100}

	cfg := testPipelineConfig()
	cfg.MaxRetries = 0
	cfg.AutoRollback = false

	o, _ := newTestOrchestrator(t, cfg, []agent.Agent{analysis, build}, nil)

	ctx := context.Background()
	_, err := o.ExecutePipeline(ctx, localProject(nil))
	require.Error(t, err)

	p, err := o.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, "failed", p.Status)
	assert.Equal(t, "Failed at Agni Agent", p.CurrentStage)
	assert.Equal(t, 1, p.CompletedAgents)
	assert.Equal(t, 2, p.TotalAgents)
	assert.Equal(t, 50.0, p.Percentage)

	status, err := o.AgentStatus(ctx, stages.StageAgni)
	require.NoError(t, err)
	assert.Equal(t, "error", status.Type)
	assert.Contains(t, status.Message, "Failed:")

	// The run never reached an agent that was not registered.
	status, err = o.AgentStatus(ctx, stages.StageYama)
	require.NoError(t, err)
	assert.Equal(t, "info", status.Type)
	assert.Equal(t, "Pending", status.Message)
}

func TestRecentLogs_Limit(t *testing.T) {
	o, _ := newTestOrchestrator(t, testPipelineConfig(), stages.Pipeline(), nil)

	ctx := context.Background()
	_, err := o.ExecutePipeline(ctx, localProject(nil))
	require.NoError(t, err)

	logs, err := o.RecentLogs(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
	for _, entry := range logs {
		assert.NotEmpty(t, entry.Timestamp)
		assert.NotEmpty(t, entry.Message)
	}
}
