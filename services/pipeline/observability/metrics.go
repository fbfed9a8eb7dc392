// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the pipeline
// orchestrator.
//
// # Description
//
// Metrics cover pipeline runs, per-stage executions, retries, and
// durations. They are exposed via the /metrics endpoint of the serve
// command; use with Prometheus + Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "aleutian"

const pipelineSubsystem = "pipeline"

// PipelineMetrics holds all Prometheus metrics for pipeline execution.
//
// # Fields
//
//   - RunsTotal: Counter of pipeline runs by mode and status
//   - StageExecutionsTotal: Counter of stage executions by stage and status
//   - StageRetriesTotal: Counter of retries by stage
//   - RollbacksTotal: Counter of rollback attempts by stage and outcome
//   - RunDurationSeconds: Histogram of end-to-end run duration
//   - StageDurationSeconds: Histogram of per-stage duration
//   - ActiveRuns: Gauge of runs currently executing
type PipelineMetrics struct {
	// RunsTotal counts pipeline runs.
	// Labels: mode (sequential, parallel), status (completed, failed)
	RunsTotal *prometheus.CounterVec

	// StageExecutionsTotal counts stage executions.
	// Labels: stage, status (completed, failed)
	StageExecutionsTotal *prometheus.CounterVec

	// StageRetriesTotal counts retry attempts per stage.
	// Labels: stage
	StageRetriesTotal *prometheus.CounterVec

	// RollbacksTotal counts rollback attempts.
	// Labels: stage, outcome (success, error)
	RollbacksTotal *prometheus.CounterVec

	// RunDurationSeconds measures end-to-end pipeline duration.
	// Labels: mode, status
	RunDurationSeconds *prometheus.HistogramVec

	// StageDurationSeconds measures individual stage duration.
	// Labels: stage
	StageDurationSeconds *prometheus.HistogramVec

	// ActiveRuns tracks pipelines currently executing.
	ActiveRuns prometheus.Gauge
}

// NewPipelineMetrics creates and registers the pipeline metrics on reg.
// Pass a fresh prometheus.NewRegistry() in tests to avoid duplicate
// registration.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)

	return &PipelineMetrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "runs_total",
				Help:      "Total pipeline runs by execution mode and terminal status",
			},
			[]string{"mode", "status"},
		),

		StageExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "stage_executions_total",
				Help:      "Total stage executions by stage name and terminal status",
			},
			[]string{"stage", "status"},
		),

		StageRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "stage_retries_total",
				Help:      "Total retry attempts by stage name",
			},
			[]string{"stage"},
		),

		RollbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "rollbacks_total",
				Help:      "Total rollback attempts by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),

		RunDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "run_duration_seconds",
				Help:      "End-to-end pipeline run duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"mode", "status"},
		),

		StageDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Individual stage execution duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),

		ActiveRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "active_runs",
				Help:      "Number of pipeline runs currently executing",
			},
		),
	}
}

// InitMetrics registers the metrics on the default Prometheus registry.
// Call once at application startup.
func InitMetrics() *PipelineMetrics {
	return NewPipelineMetrics(prometheus.DefaultRegisterer)
}

// RecordRun records a finished pipeline run.
func (m *PipelineMetrics) RecordRun(mode, status string, seconds float64) {
	m.RunsTotal.WithLabelValues(mode, status).Inc()
	m.RunDurationSeconds.WithLabelValues(mode, status).Observe(seconds)
}

// RecordStage records a finished stage execution.
func (m *PipelineMetrics) RecordStage(stage, status string, seconds float64) {
	m.StageExecutionsTotal.WithLabelValues(stage, status).Inc()
	m.StageDurationSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordRetry records one retry attempt for a stage.
func (m *PipelineMetrics) RecordRetry(stage string) {
	m.StageRetriesTotal.WithLabelValues(stage).Inc()
}

// RecordRollback records a rollback attempt.
func (m *PipelineMetrics) RecordRollback(stage string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.RollbacksTotal.WithLabelValues(stage, outcome).Inc()
}
