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
	"fmt"
)

// AddFinding records a security finding. Zero-value fields get the
// schema defaults (severity medium, category unknown, status open).
func (s *Store) AddFinding(ctx context.Context, f SecurityFinding) error {
	if f.Severity == "" {
		f.Severity = "medium"
	}
	if f.Category == "" {
		f.Category = "unknown"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_findings
		(pipeline_run_id, agent_execution_id, severity, category, title,
		 description, file_path, line_number, column_number, rule_id, remediation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.PipelineRunID, f.AgentExecutionID, f.Severity, f.Category, f.Title,
		f.Description, f.FilePath, f.LineNumber, f.ColumnNumber, f.RuleID, f.Remediation)
	if err != nil {
		return fmt.Errorf("add security finding for run %d: %w", f.PipelineRunID, err)
	}

	s.logger.Info("added security finding",
		"run_id", f.PipelineRunID,
		"severity", f.Severity,
		"title", f.Title,
	)
	return nil
}

// AddMetric records a performance metric sample.
func (s *Store) AddMetric(ctx context.Context, m PerformanceMetric) error {
	if m.Type == "" {
		m.Type = "gauge"
	}
	if m.Labels == nil {
		m.Labels = map[string]string{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO performance_metrics
		(pipeline_run_id, agent_execution_id, metric_name, metric_value,
		 metric_unit, metric_type, labels)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.PipelineRunID, m.AgentExecutionID, m.Name, m.Value,
		m.Unit, m.Type, mustJSON(m.Labels))
	if err != nil {
		return fmt.Errorf("add metric %s for run %d: %w", m.Name, m.PipelineRunID, err)
	}

	s.logger.Info("added performance metric", "run_id", m.PipelineRunID, "metric", m.Name)
	return nil
}

// AddArtifact records a build artifact.
func (s *Store) AddArtifact(ctx context.Context, a BuildArtifact) error {
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO build_artifacts
		(pipeline_run_id, agent_execution_id, artifact_type, artifact_name,
		 artifact_path, artifact_size, artifact_hash, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PipelineRunID, a.AgentExecutionID, a.Type, a.Name,
		a.Path, a.Size, a.Hash, mustJSON(a.Metadata))
	if err != nil {
		return fmt.Errorf("add artifact %s for run %d: %w", a.Name, a.PipelineRunID, err)
	}

	s.logger.Info("added build artifact", "run_id", a.PipelineRunID, "artifact", a.Name)
	return nil
}

// RecordDeployment records a deployment event and returns its ID so a
// later rollback can reference it.
func (s *Store) RecordDeployment(ctx context.Context, d Deployment) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO deployment_history
		(pipeline_run_id, environment, deployment_type, status, endpoint_url,
		 deployment_config, rollback_info)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.PipelineRunID, d.Environment, d.Type, d.Status, d.EndpointURL,
		mustJSON(d.Config), mustJSON(d.RollbackInfo))
	if err != nil {
		return 0, fmt.Errorf("record deployment for run %d: %w", d.PipelineRunID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record deployment for run %d: %w", d.PipelineRunID, err)
	}
	return id, nil
}

// MarkRolledBack stamps a deployment as rolled back.
func (s *Store) MarkRolledBack(ctx context.Context, deploymentID int64, rollbackInfo map[string]any) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deployment_history
		SET status = 'rolled_back', rolled_back_at = CURRENT_TIMESTAMP, rollback_info = ?
		WHERE id = ?`,
		mustJSON(rollbackInfo), deploymentID)
	if err != nil {
		return fmt.Errorf("mark deployment %d rolled back: %w", deploymentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark deployment %d rolled back: %w", deploymentID, ErrNotFound)
	}
	return nil
}

// FindingsForRun returns all findings recorded for a run.
func (s *Store) FindingsForRun(ctx context.Context, runID int64) ([]*SecurityFinding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pipeline_run_id, agent_execution_id, severity, category, title,
		       COALESCE(description, ''), COALESCE(file_path, ''), COALESCE(line_number, 0),
		       COALESCE(column_number, 0), COALESCE(rule_id, ''), COALESCE(remediation, ''),
		       status, false_positive, created_at
		FROM security_findings WHERE pipeline_run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list findings for run %d: %w", runID, err)
	}
	defer rows.Close()

	var findings []*SecurityFinding
	for rows.Next() {
		var f SecurityFinding
		err := rows.Scan(&f.ID, &f.PipelineRunID, &f.AgentExecutionID, &f.Severity,
			&f.Category, &f.Title, &f.Description, &f.FilePath, &f.LineNumber,
			&f.ColumnNumber, &f.RuleID, &f.Remediation, &f.Status, &f.FalsePositive,
			&f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("list findings for run %d: %w", runID, err)
		}
		findings = append(findings, &f)
	}
	return findings, rows.Err()
}
