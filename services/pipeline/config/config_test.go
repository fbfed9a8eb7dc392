// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if !cfg.ParallelExecution {
		t.Error("ParallelExecution = false, want true")
	}
	if cfg.AgentTimeout != 5*time.Minute {
		t.Errorf("AgentTimeout = %v, want 5m", cfg.AgentTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	content := `
max_retries: 1
parallel_execution: false
max_parallel_agents: 8
agent_timeout: 90s
user_id: ci-bot
tags: [nightly, release]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1", cfg.MaxRetries)
	}
	if cfg.ParallelExecution {
		t.Error("ParallelExecution = true, want false")
	}
	if cfg.MaxParallelAgents != 8 {
		t.Errorf("MaxParallelAgents = %d, want 8", cfg.MaxParallelAgents)
	}
	if cfg.AgentTimeout != 90*time.Second {
		t.Errorf("AgentTimeout = %v, want 90s", cfg.AgentTimeout)
	}
	if len(cfg.Tags) != 2 || cfg.Tags[0] != "nightly" {
		t.Errorf("Tags = %v, want [nightly release]", cfg.Tags)
	}
	// Unset fields keep defaults.
	if cfg.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want default 30", cfg.RetentionDays)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte("max_retries: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ALEUTIANFLOW_MAX_RETRIES", "7")
	t.Setenv("ALEUTIANFLOW_PARALLEL_EXECUTION", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want env override 7", cfg.MaxRetries)
	}
	if cfg.ParallelExecution {
		t.Error("ParallelExecution = true, want env override false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Pipeline)
		wantErr bool
	}{
		{"defaults valid", func(*Pipeline) {}, false},
		{"negative retries", func(p *Pipeline) { p.MaxRetries = -1 }, true},
		{"zero parallel agents", func(p *Pipeline) { p.MaxParallelAgents = 0 }, true},
		{"zero timeout", func(p *Pipeline) { p.AgentTimeout = 0 }, true},
		{"zero retention", func(p *Pipeline) { p.RetentionDays = 0 }, true},
		{"empty db path", func(p *Pipeline) { p.DatabasePath = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("err = %v, want *ConfigurationError", err)
				}
			} else if err != nil {
				t.Fatalf("Validate: %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/pipeline.yaml")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigurationError", err)
	}
}
