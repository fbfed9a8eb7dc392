// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stages

import (
	"context"

	"github.com/AleutianAI/AleutianFlow/services/pipeline/agent"
)

// Yama is the security-scan stage. It turns the project's declared
// vulnerabilities into findings, scores the aggregate risk, and issues
// the deployment decision the deploy stage enforces.
type Yama struct{}

func (Yama) Name() string { return StageYama }

func (Yama) Execute(ctx context.Context, input agent.Input) (agent.Output, error) {
	findings := collectFindings(input)
	riskScore := riskScoreFor(findings)
	// An explicit risk_score in the context or the submission overrides
	// the derived one; upstream scanners may have already assessed the
	// project.
	if v, ok := getFloat(input, "risk_score"); ok {
		riskScore = int(v)
	} else if v, ok := getFloat(getMap(input, "project_data"), "risk_score"); ok {
		riskScore = int(v)
	}

	approved := riskScore < 50

	return agent.Output{
		"status":            "completed",
		"agent_name":        "Yama",
		"risk_score":        riskScore,
		"security_findings": findings,
		"deployment_decision": map[string]any{
			"approved":   approved,
			"risk_score": riskScore,
			"risk_level": riskLevel(riskScore),
		},
	}, nil
}

// collectFindings normalizes the known_vulnerabilities entries of the
// context into finding records.
func collectFindings(input agent.Input) []any {
	raw, ok := input["known_vulnerabilities"].([]any)
	if !ok {
		raw, ok = getMap(input, "project_data")["known_vulnerabilities"].([]any)
		if !ok {
			return []any{}
		}
	}

	findings := make([]any, 0, len(raw))
	for _, entry := range raw {
		v, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		severity := getString(v, "severity")
		if severity == "" {
			severity = "medium"
		}
		category := getString(v, "category")
		if category == "" {
			category = "sast"
		}
		findings = append(findings, map[string]any{
			"severity":    severity,
			"category":    category,
			"title":       getString(v, "title"),
			"description": getString(v, "description"),
			"file_path":   getString(v, "file_path"),
			"rule_id":     getString(v, "rule_id"),
			"remediation": getString(v, "remediation"),
		})
	}
	return findings
}

// riskScoreFor weights findings by severity, capped at 100.
func riskScoreFor(findings []any) int {
	weights := map[string]int{"critical": 20, "high": 10, "medium": 5, "low": 1}
	score := 0
	for _, entry := range findings {
		f, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		score += weights[getString(f, "severity")]
	}
	if score > 100 {
		score = 100
	}
	return score
}

func riskLevel(score int) string {
	switch {
	case score >= 80:
		return "critical"
	case score >= 60:
		return "high"
	case score >= 40:
		return "medium"
	case score >= 20:
		return "low"
	default:
		return "minimal"
	}
}
