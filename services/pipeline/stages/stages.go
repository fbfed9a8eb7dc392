// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stages provides the built-in pipeline agents. Each stage is a
// deterministic transform over the merged pipeline context: it reads the
// keys earlier stages produced and emits its own. The orchestrator
// extracts the conventional keys security_findings, performance_metrics,
// and artifacts from stage output for persistence.
package stages

import (
	"fmt"

	"github.com/AleutianAI/AleutianFlow/services/pipeline/agent"
)

var (
	_ agent.Agent = Varuna{}
	_ agent.Agent = Agni{}
	_ agent.Agent = Yama{}
	_ agent.Agent = Terraform{}
	_ agent.Agent = Vayu{}
	_ agent.Agent = Hanuman{}
	_ agent.Agent = Krishna{}
	_ agent.Agent = Observability{}
	_ agent.Agent = Optimization{}

	_ agent.Rollbacker = Vayu{}
	_ agent.Rollbacker = Hanuman{}
)

// Pipeline returns the built-in agents in execution order. The last two
// run only after a successful deployment.
func Pipeline() []agent.Agent {
	return []agent.Agent{
		Varuna{}, Agni{}, Yama{}, Terraform{}, Vayu{},
		Hanuman{}, Krishna{}, Observability{}, Optimization{},
	}
}

// Stage name constants in pipeline order.
const (
	StageVaruna        = "varuna"
	StageAgni          = "agni"
	StageYama          = "yama"
	StageTerraform     = "terraform"
	StageVayu          = "vayu"
	StageHanuman       = "hanuman"
	StageKrishna       = "krishna"
	StageObservability = "observability"
	StageOptimization  = "optimization"
)

// SecurityViolationError reports a hard policy violation, such as an
// attempt to deploy without a security assessment.
type SecurityViolationError struct {
	Policy  string
	Message string
}

func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("security policy %q violated: %s", e.Policy, e.Message)
}

func getMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// getFloat tolerates the numeric types a JSON round-trip can produce.
func getFloat(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
