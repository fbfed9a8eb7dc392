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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateRun inserts a new pipeline run in status pending and returns its ID.
func (s *Store) CreateRun(ctx context.Context, projectName, projectType, projectURL string, config map[string]any, userID string, tags []string) (int64, error) {
	if userID == "" {
		userID = "anonymous"
	}
	if tags == nil {
		tags = []string{}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (project_name, project_type, project_url, config, user_id, tags)
		VALUES (?, ?, ?, ?, ?, ?)`,
		projectName, projectType, projectURL, mustJSON(config), userID, mustJSON(tags))
	if err != nil {
		return 0, fmt.Errorf("create pipeline run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create pipeline run: %w", err)
	}

	s.logger.Info("created pipeline run", "run_id", id, "project", projectName)
	return id, nil
}

// RunUpdate carries the optional fields of an UpdateRun call. Nil fields
// are left untouched in the row.
type RunUpdate struct {
	Results      map[string]any
	ErrorMessage string
}

// UpdateRun moves a run to the given status. Entering running stamps
// started_at (once); entering a terminal status stamps completed_at and
// computes duration_seconds from started_at.
func (s *Store) UpdateRun(ctx context.Context, runID int64, status string, upd RunUpdate) error {
	fields := []string{"status = ?"}
	params := []any{status}

	if status == RunRunning {
		fields = append(fields, "started_at = COALESCE(started_at, CURRENT_TIMESTAMP)")
	}
	if status == RunCompleted || status == RunFailed {
		fields = append(fields,
			"completed_at = CURRENT_TIMESTAMP",
			"duration_seconds = CAST((julianday(CURRENT_TIMESTAMP) - julianday(COALESCE(started_at, created_at))) * 86400 AS INTEGER)")
	}
	if upd.Results != nil {
		fields = append(fields, "results = ?")
		params = append(params, mustJSON(upd.Results))
	}
	if upd.ErrorMessage != "" {
		fields = append(fields, "error_message = ?")
		params = append(params, upd.ErrorMessage)
	}
	params = append(params, runID, RunCompleted, RunFailed)

	// Terminal states are absorbing: no transition leaves them.
	res, err := s.db.ExecContext(ctx,
		"UPDATE pipeline_runs SET "+strings.Join(fields, ", ")+
			" WHERE id = ? AND status NOT IN (?, ?)", params...)
	if err != nil {
		return fmt.Errorf("update pipeline run %d: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var current string
		err := s.db.QueryRowContext(ctx,
			"SELECT status FROM pipeline_runs WHERE id = ?", runID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update pipeline run %d: %w", runID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("update pipeline run %d: %w", runID, err)
		}
		return fmt.Errorf("update pipeline run %d (status %s): %w", runID, current, ErrTerminalState)
	}

	s.logger.Info("updated pipeline run", "run_id", runID, "status", status)
	return nil
}

// GetRun returns a run by ID, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, runID int64) (*PipelineRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_name, project_type, COALESCE(project_url, ''), status,
		       config, COALESCE(results, ''), COALESCE(error_message, ''),
		       created_at, started_at, completed_at, duration_seconds,
		       user_id, tags
		FROM pipeline_runs WHERE id = ?`, runID)

	var (
		r                      PipelineRun
		configJSON, resultsJSON, tagsJSON string
		startedAt, completedAt sql.NullTime
		duration               sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.ProjectName, &r.ProjectType, &r.ProjectURL, &r.Status,
		&configJSON, &resultsJSON, &r.ErrorMessage,
		&r.CreatedAt, &startedAt, &completedAt, &duration,
		&r.UserID, &tagsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pipeline run %d: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline run %d: %w", runID, err)
	}

	r.Config = decodeMap(configJSON)
	r.Results = decodeMap(resultsJSON)
	r.Tags = decodeStrings(tagsJSON)
	r.StartedAt = timePtr(startedAt)
	r.CompletedAt = timePtr(completedAt)
	r.Duration = int64Ptr(duration)
	return &r, nil
}

// CreateExecution inserts an agent execution in status pending.
func (s *Store) CreateExecution(ctx context.Context, runID int64, agentName, agentType string, input map[string]any, maxRetries int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_executions (pipeline_run_id, agent_name, agent_type, input_data, max_retries)
		VALUES (?, ?, ?, ?, ?)`,
		runID, agentName, agentType, mustJSON(input), maxRetries)
	if err != nil {
		return 0, fmt.Errorf("create execution for %s: %w", agentName, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create execution for %s: %w", agentName, err)
	}

	s.logger.Info("created agent execution", "execution_id", id, "agent", agentName)
	return id, nil
}

// ExecUpdate carries the optional fields of an UpdateExecution call.
type ExecUpdate struct {
	Output         map[string]any
	ErrorMessage   string
	IncrementRetry bool
}

// UpdateExecution moves an execution to the given status. Entering
// running stamps started_at; a terminal status stamps completed_at and
// duration_seconds. IncrementRetry bumps retry_count by one.
func (s *Store) UpdateExecution(ctx context.Context, execID int64, status string, upd ExecUpdate) error {
	fields := []string{"status = ?"}
	params := []any{status}

	if status == ExecRunning {
		fields = append(fields, "started_at = CURRENT_TIMESTAMP")
	}
	if status == ExecCompleted || status == ExecFailed {
		fields = append(fields,
			"completed_at = CURRENT_TIMESTAMP",
			"duration_seconds = CAST((julianday(CURRENT_TIMESTAMP) - julianday(started_at)) * 86400 AS INTEGER)")
	}
	if upd.Output != nil {
		fields = append(fields, "output_data = ?")
		params = append(params, mustJSON(upd.Output))
	}
	if upd.ErrorMessage != "" {
		fields = append(fields, "error_message = ?")
		params = append(params, upd.ErrorMessage)
	}
	if upd.IncrementRetry {
		fields = append(fields, "retry_count = retry_count + 1")
	}
	params = append(params, execID)

	res, err := s.db.ExecContext(ctx,
		"UPDATE agent_executions SET "+strings.Join(fields, ", ")+" WHERE id = ?", params...)
	if err != nil {
		return fmt.Errorf("update execution %d: %w", execID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update execution %d: %w", execID, ErrNotFound)
	}

	s.logger.Info("updated agent execution", "execution_id", execID, "status", status)
	return nil
}

// GetExecution returns one execution by ID, or ErrNotFound.
func (s *Store) GetExecution(ctx context.Context, execID int64) (*AgentExecution, error) {
	row := s.db.QueryRowContext(ctx, executionSelect+" WHERE id = ?", execID)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %d: %w", execID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %d: %w", execID, err)
	}
	return exec, nil
}

// ExecutionsForRun returns all executions of a run in insertion order.
func (s *Store) ExecutionsForRun(ctx context.Context, runID int64) ([]*AgentExecution, error) {
	rows, err := s.db.QueryContext(ctx, executionSelect+" WHERE pipeline_run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("list executions for run %d: %w", runID, err)
	}
	defer rows.Close()

	var execs []*AgentExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("list executions for run %d: %w", runID, err)
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

const executionSelect = `
	SELECT id, pipeline_run_id, agent_name, agent_type, status,
	       COALESCE(input_data, ''), COALESCE(output_data, ''), COALESCE(error_message, ''),
	       started_at, completed_at, duration_seconds, retry_count, max_retries
	FROM agent_executions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*AgentExecution, error) {
	var (
		e                      AgentExecution
		inputJSON, outputJSON  string
		startedAt, completedAt sql.NullTime
		duration               sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.PipelineRunID, &e.AgentName, &e.AgentType, &e.Status,
		&inputJSON, &outputJSON, &e.ErrorMessage,
		&startedAt, &completedAt, &duration, &e.RetryCount, &e.MaxRetries)
	if err != nil {
		return nil, err
	}
	e.InputData = decodeMap(inputJSON)
	e.OutputData = decodeMap(outputJSON)
	e.StartedAt = timePtr(startedAt)
	e.CompletedAt = timePtr(completedAt)
	e.Duration = int64Ptr(duration)
	return &e, nil
}

// mustJSON encodes v, falling back to an empty object on failure. The
// maps stored here come from JSON-decoded agent output, so encoding
// cannot realistically fail.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeMap(s string) map[string]any {
	if s == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

func decodeStrings(s string) []string {
	if s == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
