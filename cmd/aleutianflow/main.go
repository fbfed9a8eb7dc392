// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command aleutianflow runs the AI-agent DevSecOps pipeline.
//
// # Usage
//
//	# Run a pipeline against a local project
//	aleutianflow run --path ./my-service --language go
//
//	# Run against a git repository, sequentially
//	aleutianflow run --url https://github.com/acme/demo-api.git --parallel=false
//
//	# Start the HTTP API
//	aleutianflow serve --port 12310
//
//	# Inspect past runs
//	aleutianflow history --limit 10 --status failed
//
// Configuration is layered: built-in defaults, then the YAML file given
// by --config, then ALEUTIANFLOW_* environment variables.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
