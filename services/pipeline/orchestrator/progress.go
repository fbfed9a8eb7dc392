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
	"strings"
	"time"

	"github.com/AleutianAI/AleutianFlow/services/pipeline/store"
)

// Progress is a point-in-time view of the current run, derived entirely
// from persisted execution state.
type Progress struct {
	Percentage      float64    `json:"percentage"`
	CurrentStage    string     `json:"current_stage"`
	CompletedAgents int        `json:"completed_agents"`
	TotalAgents     int        `json:"total_agents"`
	Status          string     `json:"status"`
	Logs            []LogEntry `json:"logs"`
}

// LogEntry is one agent transition rendered as a leveled log line.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// AgentStatus is a UI-neutral status tag for one agent.
type AgentStatus struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Progress reports the current run's completion percentage, the stage
// in flight (or the stage it failed at), and recent log lines.
func (o *Orchestrator) Progress(ctx context.Context) (*Progress, error) {
	return o.ProgressForRun(ctx, o.CurrentRunID())
}

// ProgressForRun reports progress for a specific run.
func (o *Orchestrator) ProgressForRun(ctx context.Context, runID int64) (*Progress, error) {
	if runID == 0 {
		return &Progress{CurrentStage: "Not started", Logs: []LogEntry{}}, nil
	}

	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	latest, err := o.latestStatusPerAgent(ctx, runID)
	if err != nil {
		return nil, err
	}

	completed := 0
	currentStage := "Starting"
	for _, name := range o.order {
		switch latest[name] {
		case store.ExecCompleted:
			completed++
			continue
		case store.ExecRunning, store.ExecRetrying:
			currentStage = fmt.Sprintf("Running %s Agent", title(name))
		case store.ExecFailed:
			currentStage = fmt.Sprintf("Failed at %s Agent", title(name))
		default:
			continue
		}
		break
	}
	if run.Status == store.RunCompleted {
		currentStage = "Completed"
	}

	logs, err := o.RecentLogsForRun(ctx, runID, 20)
	if err != nil {
		return nil, err
	}

	total := len(o.order)
	percentage := 0.0
	if total > 0 {
		percentage = float64(completed) / float64(total) * 100
	}

	return &Progress{
		Percentage:      percentage,
		CurrentStage:    currentStage,
		CompletedAgents: completed,
		TotalAgents:     total,
		Status:          run.Status,
		Logs:            logs,
	}, nil
}

// AgentStatus maps an agent's latest persisted status to a display tag.
// Agents without a record yet report pending.
func (o *Orchestrator) AgentStatus(ctx context.Context, name string) (AgentStatus, error) {
	runID := o.CurrentRunID()
	if runID == 0 {
		return AgentStatus{Type: "info", Message: "Pipeline not started"}, nil
	}

	execs, err := o.store.ExecutionsForRun(ctx, runID)
	if err != nil {
		return AgentStatus{}, err
	}

	var last *store.AgentExecution
	for _, e := range execs {
		if e.AgentName == name {
			last = e
		}
	}
	if last == nil {
		return AgentStatus{Type: "info", Message: "Pending"}, nil
	}

	switch last.Status {
	case store.ExecCompleted:
		return AgentStatus{Type: "success", Message: "Completed"}, nil
	case store.ExecFailed:
		return AgentStatus{Type: "error", Message: "Failed: " + last.ErrorMessage}, nil
	case store.ExecRunning:
		return AgentStatus{Type: "info", Message: "Running"}, nil
	case store.ExecRetrying:
		return AgentStatus{Type: "warning", Message: "Retrying"}, nil
	default:
		return AgentStatus{Type: "info", Message: title(last.Status)}, nil
	}
}

// RecentLogs renders the current run's most recent execution
// transitions as leveled log lines, newest first.
func (o *Orchestrator) RecentLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	return o.RecentLogsForRun(ctx, o.CurrentRunID(), limit)
}

// RecentLogsForRun is RecentLogs for a specific run.
func (o *Orchestrator) RecentLogsForRun(ctx context.Context, runID int64, limit int) ([]LogEntry, error) {
	if runID == 0 {
		return []LogEntry{}, nil
	}

	execs, err := o.store.ExecutionsForRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	logs := make([]LogEntry, 0, limit)
	for i := len(execs) - 1; i >= 0 && len(logs) < limit; i-- {
		e := execs[i]

		var level, message string
		switch e.Status {
		case store.ExecCompleted:
			level = "INFO"
			message = fmt.Sprintf("%s agent completed successfully", title(e.AgentName))
		case store.ExecFailed:
			level = "ERROR"
			message = fmt.Sprintf("%s agent failed: %s", title(e.AgentName), e.ErrorMessage)
		case store.ExecRunning:
			level = "INFO"
			message = fmt.Sprintf("%s agent is running", title(e.AgentName))
		default:
			level = "INFO"
			message = fmt.Sprintf("%s agent status: %s", title(e.AgentName), e.Status)
		}

		timestamp := ""
		if e.StartedAt != nil {
			timestamp = e.StartedAt.Format(time.RFC3339)
		} else if e.CompletedAt != nil {
			timestamp = e.CompletedAt.Format(time.RFC3339)
		}

		logs = append(logs, LogEntry{Timestamp: timestamp, Level: level, Message: message})
	}
	return logs, nil
}

// latestStatusPerAgent collapses the run's executions to the most recent
// status per agent name.
func (o *Orchestrator) latestStatusPerAgent(ctx context.Context, runID int64) (map[string]string, error) {
	execs, err := o.store.ExecutionsForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]string, len(execs))
	for _, e := range execs {
		latest[e.AgentName] = e.Status
	}
	return latest, nil
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
