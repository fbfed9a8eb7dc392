// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent defines the pipeline's unit-of-work contract and the
// Adapter that wraps every heterogeneous agent behind one uniform,
// resilience-protected execution surface.
package agent

import (
	"context"
)

// Input is the opaque key/value payload handed to an agent. Stage outputs
// are merged into the next stage's Input by the orchestrator.
type Input = map[string]any

// Output is the opaque key/value result an agent produces. Well-known keys
// ("security_findings", "performance_metrics", "artifacts") are extracted
// and persisted by the orchestrator; everything else flows forward.
type Output = map[string]any

// Agent is the only capability the core requires of a pipeline stage.
//
// Execute must be safe to retry: the orchestrator assumes at-least-once
// semantics and will re-invoke a failed agent up to its retry budget.
// Agents signal failure by returning an error, never a sentinel value.
type Agent interface {
	// Name returns the stable stage name, e.g. "yama".
	Name() string

	// Execute transforms the merged pipeline input into this stage's
	// output. A nil output with a nil error violates the contract.
	Execute(ctx context.Context, input Input) (Output, error)
}

// Rollbacker is implemented by agents that can compensate an already
// applied side effect, e.g. the deployment agent undoing a rollout.
// Rollback is best-effort: callers log its failure and move on.
type Rollbacker interface {
	Rollback(ctx context.Context) (Output, error)
}
