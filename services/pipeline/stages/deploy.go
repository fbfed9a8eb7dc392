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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianFlow/services/pipeline/agent"
)

// Vayu is the deploy stage. It enforces the security stage's deployment
// decision: an unapproved decision yields a blocked result (not an
// error), and a missing decision is a policy violation.
type Vayu struct{}

func (Vayu) Name() string { return StageVayu }

func (Vayu) Execute(ctx context.Context, input agent.Input) (agent.Output, error) {
	decision := getMap(input, "deployment_decision")
	if decision == nil {
		return nil, &SecurityViolationError{
			Policy:  "assessment_required",
			Message: "deployment attempted without a security assessment",
		}
	}

	if approved, _ := decision["approved"].(bool); !approved {
		return agent.Output{
			"status":     "blocked",
			"agent_name": "Vayu",
			"reason":     "Deployment blocked by security assessment",
		}, nil
	}

	project := getMap(input, "project_data")
	name := strings.ToLower(strings.ReplaceAll(getString(project, "name"), " ", "-"))
	if name == "" {
		name = "app"
	}
	traffic := getString(project, "expected_traffic")

	return agent.Output{
		"status":            "completed",
		"agent_name":        "Vayu",
		"deployment_status": "success",
		"deployment": map[string]any{
			"project_name": name,
			"environment":  "staging",
			"strategy":     "rolling",
			"replicas":     replicasFor(traffic),
			"endpoint_url": fmt.Sprintf("https://%s.staging.example.com", name),
		},
	}, nil
}

// Rollback tears the deployment back down. Best effort; the orchestrator
// only logs the outcome.
func (Vayu) Rollback(ctx context.Context) (agent.Output, error) {
	return agent.Output{
		"status":     "rolled_back",
		"agent_name": "Vayu",
		"action":     "previous revision restored",
	}, nil
}

func replicasFor(traffic string) int {
	switch traffic {
	case "high":
		return 5
	case "low":
		return 1
	default:
		return 3
	}
}
