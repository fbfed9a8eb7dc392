// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates pipeline configuration from YAML
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigurationError reports an invalid or unloadable configuration.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error in %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Pipeline holds the orchestrator's tunables.
//
// Inputs: a YAML file (optional) and ALEUTIANFLOW_* environment
// variables, which win over the file.
// Outputs: a validated Pipeline; Load fails with ConfigurationError
// when a value is out of range.
type Pipeline struct {
	// MaxRetries is the per-agent retry budget beyond the first attempt.
	MaxRetries int `yaml:"max_retries"`

	// ParallelExecution switches the orchestrator to the phased
	// parallel flow.
	ParallelExecution bool `yaml:"parallel_execution"`

	// MaxParallelAgents bounds concurrent agents in parallel phases.
	MaxParallelAgents int `yaml:"max_parallel_agents"`

	// AutoRollback enables rollback on deploy/verify stage failure.
	AutoRollback bool `yaml:"auto_rollback"`

	// AgentTimeout is the per-attempt deadline for one agent execution.
	AgentTimeout time.Duration `yaml:"agent_timeout"`

	// RetentionDays controls how long completed runs are kept.
	RetentionDays int `yaml:"retention_days"`

	// DatabasePath is the SQLite file backing the pipeline store.
	DatabasePath string `yaml:"database_path"`

	UserID string   `yaml:"user_id"`
	Tags   []string `yaml:"tags"`
}

// Default returns the configuration used when no file is given.
func Default() Pipeline {
	return Pipeline{
		MaxRetries:        3,
		ParallelExecution: true,
		MaxParallelAgents: 3,
		AutoRollback:      true,
		AgentTimeout:      5 * time.Minute,
		RetentionDays:     30,
		DatabasePath:      "data/aleutianflow.db",
		UserID:            "anonymous",
	}
}

// Load reads path (if non-empty), applies environment overrides, and
// validates the result.
func Load(path string) (Pipeline, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, &ConfigurationError{Message: fmt.Sprintf("read %s: %v", path, err)}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &ConfigurationError{Message: fmt.Sprintf("parse %s: %v", path, err)}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Pipeline) {
	if v := os.Getenv("ALEUTIANFLOW_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("ALEUTIANFLOW_PARALLEL_EXECUTION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ParallelExecution = b
		}
	}
	if v := os.Getenv("ALEUTIANFLOW_MAX_PARALLEL_AGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxParallelAgents = n
		}
	}
	if v := os.Getenv("ALEUTIANFLOW_AUTO_ROLLBACK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoRollback = b
		}
	}
	if v := os.Getenv("ALEUTIANFLOW_AGENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AgentTimeout = d
		}
	}
	if v := os.Getenv("ALEUTIANFLOW_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("ALEUTIANFLOW_USER_ID"); v != "" {
		cfg.UserID = v
	}
}

// Validate checks ranges; the zero value is not valid.
func (p Pipeline) Validate() error {
	if p.MaxRetries < 0 {
		return &ConfigurationError{Field: "max_retries", Message: "must be >= 0"}
	}
	if p.MaxParallelAgents < 1 {
		return &ConfigurationError{Field: "max_parallel_agents", Message: "must be >= 1"}
	}
	if p.AgentTimeout <= 0 {
		return &ConfigurationError{Field: "agent_timeout", Message: "must be positive"}
	}
	if p.RetentionDays < 1 {
		return &ConfigurationError{Field: "retention_days", Message: "must be >= 1"}
	}
	if p.DatabasePath == "" {
		return &ConfigurationError{Field: "database_path", Message: "must not be empty"}
	}
	return nil
}
