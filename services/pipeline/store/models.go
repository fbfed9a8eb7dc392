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

import "time"

// Run lifecycle states. A run is terminal once it reaches completed or
// failed; no transition leaves a terminal state.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Execution lifecycle states. Retrying is a transient state between a
// failed attempt and the next running attempt.
const (
	ExecPending   = "pending"
	ExecRunning   = "running"
	ExecCompleted = "completed"
	ExecRetrying  = "retrying"
	ExecFailed    = "failed"
)

// PipelineRun is one end-to-end pipeline invocation.
type PipelineRun struct {
	ID           int64
	ProjectName  string
	ProjectType  string
	ProjectURL   string
	Status       string
	Config       map[string]any
	Results      map[string]any
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Duration     *int64
	UserID       string
	Tags         []string
}

// AgentExecution is one agent's attempt sequence within a run. A single
// row covers all retry attempts; retry_count records how many retries
// were consumed.
type AgentExecution struct {
	ID           int64
	PipelineRunID int64
	AgentName    string
	AgentType    string
	Status       string
	InputData    map[string]any
	OutputData   map[string]any
	ErrorMessage string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Duration     *int64
	RetryCount   int
	MaxRetries   int
}

// SecurityFinding is one issue reported by a security-stage agent.
type SecurityFinding struct {
	ID               int64
	PipelineRunID    int64
	AgentExecutionID *int64
	Severity         string
	Category         string
	Title            string
	Description      string
	FilePath         string
	LineNumber       int
	ColumnNumber     int
	RuleID           string
	Remediation      string
	Status           string
	FalsePositive    bool
	CreatedAt        time.Time
}

// PerformanceMetric is one measurement emitted during a run.
type PerformanceMetric struct {
	PipelineRunID    int64
	AgentExecutionID *int64
	Name             string
	Value            float64
	Unit             string
	Type             string
	Labels           map[string]string
}

// BuildArtifact describes an output the build stage produced.
type BuildArtifact struct {
	PipelineRunID    int64
	AgentExecutionID *int64
	Type             string
	Name             string
	Path             string
	Size             int64
	Hash             string
	Metadata         map[string]any
}

// Deployment is one deployment (or rollback) event for a run.
type Deployment struct {
	ID            int64
	PipelineRunID int64
	Environment   string
	Type          string
	Status        string
	EndpointURL   string
	Config        map[string]any
	RollbackInfo  map[string]any
	DeployedAt    time.Time
	RolledBackAt  *time.Time
}

// RunSummary is the trimmed view returned by History.
type RunSummary struct {
	ID          int64
	ProjectName string
	ProjectType string
	Status      string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Duration    *int64
	UserID      string
	Tags        []string
}

// SecuritySummary aggregates open findings for one run.
type SecuritySummary struct {
	FindingsBySeverity map[string]int
	TotalFindings      int
	OpenFindings       int
	FalsePositives     int
	SecurityScore      int
}

// MetricSummary is one metric name aggregated over a run.
type MetricSummary struct {
	Name     string
	Average  float64
	Min      float64
	Max      float64
	Unit     string
	Count    int
}
