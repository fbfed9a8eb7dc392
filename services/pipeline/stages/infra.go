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

// Terraform is the infrastructure-provisioning stage. It plans the
// resources the deploy stage will target.
type Terraform struct{}

func (Terraform) Name() string { return StageTerraform }

func (Terraform) Execute(ctx context.Context, input agent.Input) (agent.Output, error) {
	project := getMap(input, "project_data")
	region := getString(project, "region")
	if region == "" {
		region = "us-east-1"
	}
	target := getString(project, "deployment_target")
	if target == "" {
		target = "kubernetes"
	}

	return agent.Output{
		"status":     "provisioned",
		"agent_name": "Terraform",
		"infrastructure": map[string]any{
			"provider": target,
			"region":   region,
			"resources": []any{
				map[string]any{"type": "cluster", "name": "pipeline-cluster"},
				map[string]any{"type": "registry", "name": "pipeline-registry"},
			},
		},
	}, nil
}
