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
	"fmt"
	"strings"
)

// HistoryFilter narrows a History query. Zero values mean no filter;
// Limit defaults to 50.
type HistoryFilter struct {
	Limit  int
	Status string
	UserID string
}

// History returns recent runs, newest first.
func (s *Store) History(ctx context.Context, filter HistoryFilter) ([]*RunSummary, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `
		SELECT id, project_name, project_type, status, created_at,
		       started_at, completed_at, duration_seconds, user_id, tags
		FROM pipeline_runs`
	var (
		conditions []string
		params     []any
	)
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		params = append(params, filter.Status)
	}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		params = append(params, filter.UserID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	params = append(params, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("pipeline history: %w", err)
	}
	defer rows.Close()

	var summaries []*RunSummary
	for rows.Next() {
		var (
			r                      RunSummary
			startedAt, completedAt sql.NullTime
			duration               sql.NullInt64
			tagsJSON               string
		)
		err := rows.Scan(&r.ID, &r.ProjectName, &r.ProjectType, &r.Status, &r.CreatedAt,
			&startedAt, &completedAt, &duration, &r.UserID, &tagsJSON)
		if err != nil {
			return nil, fmt.Errorf("pipeline history: %w", err)
		}
		r.StartedAt = timePtr(startedAt)
		r.CompletedAt = timePtr(completedAt)
		r.Duration = int64Ptr(duration)
		r.Tags = decodeStrings(tagsJSON)
		summaries = append(summaries, &r)
	}
	return summaries, rows.Err()
}

// SecuritySummaryForRun aggregates open findings by severity and derives
// a 0-100 score.
func (s *Store) SecuritySummaryForRun(ctx context.Context, runID int64) (*SecuritySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, COUNT(*) FROM security_findings
		WHERE pipeline_run_id = ? AND status = 'open'
		GROUP BY severity`, runID)
	if err != nil {
		return nil, fmt.Errorf("security summary for run %d: %w", runID, err)
	}
	defer rows.Close()

	bySeverity := map[string]int{}
	for rows.Next() {
		var sev string
		var count int
		if err := rows.Scan(&sev, &count); err != nil {
			return nil, fmt.Errorf("security summary for run %d: %w", runID, err)
		}
		bySeverity[sev] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("security summary for run %d: %w", runID, err)
	}

	var summary SecuritySummary
	summary.FindingsBySeverity = bySeverity
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(CASE WHEN status = 'open' THEN 1 END),
		       COUNT(CASE WHEN false_positive = 1 THEN 1 END)
		FROM security_findings WHERE pipeline_run_id = ?`, runID).
		Scan(&summary.TotalFindings, &summary.OpenFindings, &summary.FalsePositives)
	if err != nil {
		return nil, fmt.Errorf("security summary for run %d: %w", runID, err)
	}

	summary.SecurityScore = securityScore(bySeverity)
	return &summary, nil
}

// securityScore maps weighted open findings to a banded 0-100 score,
// where 100 means no findings.
func securityScore(bySeverity map[string]int) int {
	weights := map[string]int{"critical": 10, "high": 5, "medium": 2, "low": 1}
	total := 0
	for sev, weight := range weights {
		total += bySeverity[sev] * weight
	}

	switch {
	case total == 0:
		return 100
	case total <= 5:
		return 90
	case total <= 15:
		return 75
	case total <= 30:
		return 50
	default:
		return 25
	}
}

// PerformanceSummaryForRun aggregates metrics by name over a run.
func (s *Store) PerformanceSummaryForRun(ctx context.Context, runID int64) ([]*MetricSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT metric_name, AVG(metric_value), MIN(metric_value), MAX(metric_value),
		       COALESCE(metric_unit, ''), COUNT(*)
		FROM performance_metrics
		WHERE pipeline_run_id = ?
		GROUP BY metric_name, metric_unit`, runID)
	if err != nil {
		return nil, fmt.Errorf("performance summary for run %d: %w", runID, err)
	}
	defer rows.Close()

	var metrics []*MetricSummary
	for rows.Next() {
		var m MetricSummary
		if err := rows.Scan(&m.Name, &m.Average, &m.Min, &m.Max, &m.Unit, &m.Count); err != nil {
			return nil, fmt.Errorf("performance summary for run %d: %w", runID, err)
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

// Cleanup deletes runs older than daysToKeep days. Child records go
// with them through the cascade constraints. Returns the number of runs
// removed.
func (s *Store) Cleanup(ctx context.Context, daysToKeep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM pipeline_runs WHERE created_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", daysToKeep))
	if err != nil {
		return 0, fmt.Errorf("cleanup old runs: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup old runs: %w", err)
	}

	s.logger.Info("cleaned up old pipeline runs", "deleted", deleted, "days_kept", daysToKeep)
	return deleted, nil
}

// RunStatistics aggregates run outcomes over a trailing window.
type RunStatistics struct {
	TotalRuns      int64    `json:"total_runs"`
	SuccessfulRuns int64    `json:"successful_runs"`
	FailedRuns     int64    `json:"failed_runs"`
	AvgDuration    *float64 `json:"avg_duration"`
	MaxDuration    *int64   `json:"max_duration"`
	MinDuration    *int64   `json:"min_duration"`
}

// Statistics aggregates runs created in the last windowDays days.
// Duration fields are nil when no run in the window has finished.
func (s *Store) Statistics(ctx context.Context, windowDays int) (*RunStatistics, error) {
	if windowDays <= 0 {
		windowDays = 30
	}

	var (
		stats RunStatistics
		avg   sql.NullFloat64
		max   sql.NullInt64
		min   sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = ? THEN 1 END),
			COUNT(CASE WHEN status = ? THEN 1 END),
			AVG(duration_seconds),
			MAX(duration_seconds),
			MIN(duration_seconds)
		FROM pipeline_runs
		WHERE created_at > datetime('now', ?)`,
		RunCompleted, RunFailed, fmt.Sprintf("-%d days", windowDays)).
		Scan(&stats.TotalRuns, &stats.SuccessfulRuns, &stats.FailedRuns, &avg, &max, &min)
	if err != nil {
		return nil, fmt.Errorf("run statistics: %w", err)
	}

	if avg.Valid {
		stats.AvgDuration = &avg.Float64
	}
	if max.Valid {
		stats.MaxDuration = &max.Int64
	}
	if min.Valid {
		stats.MinDuration = &min.Int64
	}
	return &stats, nil
}

// Stats returns row counts per table plus the database file size.
func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	stats := map[string]int64{}
	tables := []string{
		"pipeline_runs", "agent_executions", "security_findings",
		"performance_metrics", "build_artifacts", "deployment_history",
	}
	for _, table := range tables {
		var count int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("stats for %s: %w", table, err)
		}
		stats[table+"_count"] = count
	}

	var size int64
	err := s.db.QueryRowContext(ctx,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").Scan(&size)
	if err != nil {
		return nil, fmt.Errorf("database size: %w", err)
	}
	stats["database_size_bytes"] = size

	return stats, nil
}
