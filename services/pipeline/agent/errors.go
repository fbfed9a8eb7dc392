// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import "fmt"

// ExecutionError reports that an agent's Execute raised or returned an
// invalid shape. It carries the agent name, the original cause, and a
// small context map (input keys, status at failure) for diagnostics.
type ExecutionError struct {
	Agent   string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("agent %s execution failed: %v", e.Agent, e.Err)
}

// Unwrap exposes the original cause for errors.Is/As.
func (e *ExecutionError) Unwrap() error { return e.Err }

// ToolIntegrationError reports that an external CLI or tool invocation
// made on behalf of an agent failed. It passes through the Adapter
// unwrapped so callers can distinguish tool failures from agent bugs.
type ToolIntegrationError struct {
	Tool string
	Err  error
}

// Error implements the error interface.
func (e *ToolIntegrationError) Error() string {
	return fmt.Sprintf("tool integration failed for %s: %v", e.Tool, e.Err)
}

// Unwrap exposes the original cause for errors.Is/As.
func (e *ToolIntegrationError) Unwrap() error { return e.Err }
