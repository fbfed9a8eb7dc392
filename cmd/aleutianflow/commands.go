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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	logDir     string
	quiet      bool

	// run flags
	projectPath     string
	projectURL      string
	projectLanguage string
	parallelFlag    string // "", "true" or "false": tri-state override
	maxRetriesFlag  int
	outputJSON      bool

	// serve flags
	servePort int

	// history flags
	historyLimit  int
	historyStatus string

	// cleanup flags
	cleanupDays int

	rootCmd = &cobra.Command{
		Use:   "aleutianflow",
		Short: "An AI-agent driven DevSecOps pipeline",
		Long: `AleutianFlow runs a project through analysis, build, security
scanning, provisioning, deployment, testing and governance stages,
persisting every step so runs can be inspected and resumed.`,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Execute the pipeline against a project",
		RunE:  runPipeline, // Defined in cmd_run.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the pipeline HTTP API",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List past pipeline runs",
		RunE:  runHistory, // Defined in cmd_admin.go
	}

	cleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Delete pipeline runs older than the retention window",
		RunE:  runCleanup, // Defined in cmd_admin.go
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE:  runStats, // Defined in cmd_admin.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for JSON log files (disabled when empty)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress stderr logging")

	runCmd.Flags().StringVar(&projectPath, "path", "", "Local project path")
	runCmd.Flags().StringVar(&projectURL, "url", "", "Git repository URL")
	runCmd.Flags().StringVar(&projectLanguage, "language", "", "Project language hint (go, python, javascript, ...)")
	runCmd.Flags().StringVar(&parallelFlag, "parallel", "", "Override parallel execution (true/false)")
	runCmd.Flags().IntVar(&maxRetriesFlag, "max-retries", -1, "Override the per-stage retry budget")
	runCmd.Flags().BoolVar(&outputJSON, "json", false, "Print the full results blob as JSON")

	serveCmd.Flags().IntVar(&servePort, "port", 12310, "HTTP listen port")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter by run status")

	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Retention window in days (0 uses the configured default)")

	rootCmd.AddCommand(runCmd, serveCmd, historyCmd, cleanupCmd, statsCmd)
}
