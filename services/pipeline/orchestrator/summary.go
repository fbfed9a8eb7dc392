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
	"encoding/json"
	"fmt"
	"strings"
)

// aiUnavailable is the placeholder used when the LLM collaborator is
// absent or failing. Summaries degrade, runs never do.
const aiUnavailable = "AI recommendations unavailable"

// generateSummary aggregates the run's persisted findings and metrics
// and, when an LLM client is configured, asks it for free-text
// recommendations.
func (o *Orchestrator) generateSummary(ctx context.Context, runID int64, results map[string]any) map[string]any {
	summary := map[string]any{
		"pipeline_run_id": runID,
		"status":          "completed",
		"total_stages":    len(results),
	}

	security, err := o.store.SecuritySummaryForRun(ctx, runID)
	if err != nil {
		o.logger.Error("failed to aggregate security summary", "run_id", runID, "error", err)
	} else {
		summary["security_summary"] = map[string]any{
			"findings_by_severity": security.FindingsBySeverity,
			"total_findings":       security.TotalFindings,
			"open_findings":        security.OpenFindings,
			"false_positives":      security.FalsePositives,
			"security_score":       security.SecurityScore,
		}
	}

	performance, err := o.store.PerformanceSummaryForRun(ctx, runID)
	if err != nil {
		o.logger.Error("failed to aggregate performance summary", "run_id", runID, "error", err)
	} else {
		metrics := make([]any, 0, len(performance))
		for _, m := range performance {
			metrics = append(metrics, map[string]any{
				"name":    m.Name,
				"average": m.Average,
				"min":     m.Min,
				"max":     m.Max,
				"unit":    m.Unit,
				"count":   m.Count,
			})
		}
		summary["performance_summary"] = map[string]any{"metrics": metrics}
	}

	var score, findings int
	if security != nil {
		score = security.SecurityScore
		findings = security.TotalFindings
	}
	summary["ai_recommendations"] = o.recommendations(ctx, score, findings, len(performance), results)
	return summary
}

func (o *Orchestrator) recommendations(ctx context.Context, score, findings, metricCount int, results map[string]any) string {
	if o.llm == nil {
		return aiUnavailable
	}
	statuses := map[string]string{}
	for stage, result := range results {
		if r, ok := result.(map[string]any); ok {
			statuses[stage] = stringOr(r, "status", "unknown")
		}
	}
	statusJSON, _ := json.MarshalIndent(statuses, "", "  ")

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Analyze this DevSecOps pipeline execution and provide recommendations:\n\n")
	fmt.Fprintf(&prompt, "Security Score: %d/100\n", score)
	fmt.Fprintf(&prompt, "Security Findings: %d\n", findings)
	fmt.Fprintf(&prompt, "Performance Metrics: %d\n\n", metricCount)
	fmt.Fprintf(&prompt, "Pipeline Results Summary:\n%s\n\n", statusJSON)
	prompt.WriteString("Provide:\n")
	prompt.WriteString("1. Top 3 recommendations for improvement\n")
	prompt.WriteString("2. Security priorities\n")
	prompt.WriteString("3. Performance optimization suggestions\n")
	prompt.WriteString("4. Next steps for deployment\n")

	response, err := o.llm.Invoke(ctx, prompt.String())
	if err != nil {
		o.logger.Warn("failed to generate AI recommendations", "error", err)
		return aiUnavailable
	}
	return response
}
