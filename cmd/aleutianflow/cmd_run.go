// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianFlow/services/pipeline/config"
)

// runPipeline executes one pipeline run from the CLI and prints the
// outcome. Exit code is non-zero when the run fails; a blocked
// deployment is still a completed run.
func runPipeline(cmd *cobra.Command, args []string) error {
	if projectPath == "" && projectURL == "" {
		return fmt.Errorf("one of --path or --url is required")
	}
	if projectPath != "" && projectURL != "" {
		return fmt.Errorf("--path and --url are mutually exclusive")
	}

	// Flag overrides sit above file and environment config.
	rt, err := newRuntime(false, func(cfg *config.Pipeline) error {
		switch parallelFlag {
		case "":
		case "true":
			cfg.ParallelExecution = true
		case "false":
			cfg.ParallelExecution = false
		default:
			return fmt.Errorf("--parallel must be true or false, got %q", parallelFlag)
		}
		if maxRetriesFlag >= 0 {
			cfg.MaxRetries = maxRetriesFlag
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer rt.close()

	project := map[string]any{}
	if projectPath != "" {
		project["type"] = "local"
		project["path"] = projectPath
	} else {
		project["type"] = "git"
		project["url"] = projectURL
	}
	if projectLanguage != "" {
		project["language"] = projectLanguage
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := rt.orch.ExecutePipeline(ctx, project)
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	if outputJSON {
		encoded, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	}

	printRunReport(rt, results)
	return nil
}

func printRunReport(rt *runtime, results map[string]any) {
	fmt.Printf("Pipeline run %d completed\n", rt.orch.CurrentRunID())

	if deployment, ok := results["deployment"].(map[string]any); ok {
		if status, _ := deployment["status"].(string); status == "blocked" {
			fmt.Printf("  Deployment: BLOCKED (%v)\n", deployment["reason"])
		} else if inner, ok := deployment["deployment"].(map[string]any); ok {
			fmt.Printf("  Deployment: %v\n", inner["endpoint_url"])
		}
	}

	if governance, ok := results["governance"].(map[string]any); ok {
		if decision, ok := governance["governance_decision"].(map[string]any); ok {
			fmt.Printf("  Governance: approved=%v risk_score=%v\n",
				decision["approved"], decision["risk_score"])
		}
	}

	if summary, ok := results["summary"].(map[string]any); ok {
		if sec, ok := summary["security_summary"].(map[string]any); ok {
			fmt.Printf("  Security score: %v (%v findings)\n",
				sec["security_score"], sec["total_findings"])
		}
		fmt.Printf("\n%v\n", summary["ai_recommendations"])
	}
}
