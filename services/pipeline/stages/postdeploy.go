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

// Observability sets up monitoring for a successful deployment.
type Observability struct{}

func (Observability) Name() string { return StageObservability }

func (Observability) Execute(ctx context.Context, input agent.Input) (agent.Output, error) {
	deployment := getMap(input, "deployment")
	return agent.Output{
		"status":     "completed",
		"agent_name": "Observability",
		"monitoring": map[string]any{
			"dashboards": []any{"pipeline-overview", "service-health"},
			"alerts":     []any{"error-rate-high", "latency-p95-high"},
			"endpoint":   getString(deployment, "endpoint_url"),
		},
	}, nil
}

// Optimization emits tuning recommendations from the collected metrics.
type Optimization struct{}

func (Optimization) Name() string { return StageOptimization }

func (Optimization) Execute(ctx context.Context, input agent.Input) (agent.Output, error) {
	recommendations := []any{"enable response caching"}
	if deployment := getMap(input, "deployment"); deployment != nil {
		if replicas, ok := getFloat(deployment, "replicas"); ok && replicas > 3 {
			recommendations = append(recommendations, "review replica count against observed load")
		}
	}
	return agent.Output{
		"status":          "completed",
		"agent_name":      "Optimization",
		"recommendations": recommendations,
	}, nil
}
