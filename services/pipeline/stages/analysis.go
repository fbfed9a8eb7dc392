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

// Varuna is the code-analysis stage. It classifies the project and
// derives a build configuration for the build stage.
type Varuna struct{}

func (Varuna) Name() string { return StageVaruna }

func (Varuna) Execute(ctx context.Context, input agent.Input) (agent.Output, error) {
	project := getMap(input, "project_data")
	if project == nil {
		project = input
	}

	language := getString(project, "language")
	if language == "" {
		language = "unknown"
	}
	framework := getString(project, "framework")

	return agent.Output{
		"status":       "completed",
		"agent_name":   "Varuna",
		"language":     language,
		"framework":    framework,
		"build_config": buildConfigFor(language, framework),
		"code_analysis": map[string]any{
			"language":  language,
			"framework": framework,
		},
	}, nil
}

// buildConfigFor maps a detected language to its conventional toolchain.
func buildConfigFor(language, framework string) map[string]any {
	cfg := map[string]any{
		"build_tool":           "unknown",
		"dependencies_install": []string{},
		"build_commands":       []string{},
		"test_commands":        []string{},
		"port":                 8080,
		"health_check":         "/",
	}

	switch language {
	case "python":
		cfg["build_tool"] = "pip"
		cfg["dependencies_install"] = []string{"pip install -r requirements.txt"}
		cfg["test_commands"] = []string{"pytest"}
		cfg["port"] = 8000
		if framework == "django" {
			cfg["test_commands"] = []string{"python manage.py test"}
			cfg["health_check"] = "/admin/"
		}
	case "javascript", "typescript", "node":
		cfg["build_tool"] = "npm"
		cfg["dependencies_install"] = []string{"npm install"}
		cfg["build_commands"] = []string{"npm run build"}
		cfg["test_commands"] = []string{"npm test"}
		cfg["port"] = 3000
	case "java":
		cfg["build_tool"] = "maven"
		cfg["dependencies_install"] = []string{"mvn clean install"}
		cfg["build_commands"] = []string{"mvn package"}
		cfg["test_commands"] = []string{"mvn test"}
	case "go":
		cfg["build_tool"] = "go"
		cfg["dependencies_install"] = []string{"go mod download"}
		cfg["build_commands"] = []string{"go build"}
		cfg["test_commands"] = []string{"go test ./..."}
	case "rust":
		cfg["build_tool"] = "cargo"
		cfg["dependencies_install"] = []string{"cargo fetch"}
		cfg["build_commands"] = []string{"cargo build --release"}
		cfg["test_commands"] = []string{"cargo test"}
	}
	return cfg
}
