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

// Krishna is the governance stage. It evaluates quality gates over the
// accumulated pipeline context and approves the run when the security
// risk score stays under 50. In the parallel flow it may run before
// testing finishes, so the testing gate is evaluated only when results
// are present.
type Krishna struct{}

func (Krishna) Name() string { return StageKrishna }

func (Krishna) Execute(ctx context.Context, input agent.Input) (agent.Output, error) {
	riskScore := 100
	if v, ok := getFloat(input, "risk_score"); ok {
		riskScore = int(v)
	} else if decision := getMap(input, "deployment_decision"); decision != nil {
		if v, ok := getFloat(decision, "risk_score"); ok {
			riskScore = int(v)
		}
	}
	approved := riskScore < 50

	gates := map[string]any{
		"code_analysis":       gate(getMap(input, "build_config") != nil, "no code analysis performed"),
		"build_quality":       gate(getMap(input, "docker_artifacts") != nil, "no build artifacts created"),
		"security_compliance": gate(approved, "risk score exceeds threshold"),
		"deployment_success":  deploymentGate(input),
	}
	if tests := getMap(input, "test_summary"); tests != nil {
		passed, _ := tests["tests_passed"].(bool)
		gates["testing_validation"] = gate(passed, "tests failed")
	}

	passedCount := 0
	for _, g := range gates {
		if getString(g.(map[string]any), "status") == "passed" {
			passedCount++
		}
	}

	reason := "all quality gates passed"
	if !approved {
		reason = "rejected: security risk score too high"
	}

	return agent.Output{
		"status":     "completed",
		"agent_name": "Krishna",
		"governance_decision": map[string]any{
			"approved":   approved,
			"risk_score": riskScore,
			"reason":     reason,
		},
		"quality_gates": gates,
		"compliance_report": map[string]any{
			"gates_total":  len(gates),
			"gates_passed": passedCount,
		},
	}, nil
}

func gate(passed bool, failReason string) map[string]any {
	if passed {
		return map[string]any{"status": "passed"}
	}
	return map[string]any{"status": "failed", "reason": failReason}
}

func deploymentGate(input agent.Input) map[string]any {
	if getString(input, "status") == "blocked" {
		return map[string]any{
			"status": "blocked",
			"reason": getString(input, "reason"),
		}
	}
	return gate(getString(input, "deployment_status") == "success", "no deployment performed")
}
