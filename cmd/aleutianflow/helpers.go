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
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/AleutianAI/AleutianFlow/pkg/logging"
	"github.com/AleutianAI/AleutianFlow/services/llm"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/config"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/observability"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/orchestrator"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/resilience"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/stages"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/store"
)

// runtime bundles everything a subcommand needs.
type runtime struct {
	cfg    config.Pipeline
	logger *slog.Logger
	store  *store.Store
	orch   *orchestrator.Orchestrator
	health *resilience.HealthRegistry

	logCloser io.Closer
}

// newRuntime wires config, logging, storage, agents and the
// orchestrator. withMetrics registers Prometheus collectors on the
// default registry; only the server wants that. mutate, when non-nil,
// applies flag overrides to the loaded config before anything consumes
// it.
func newRuntime(withMetrics bool, mutate func(*config.Pipeline) error) (*runtime, error) {
	logger, logCloser, err := logging.New(logging.Config{
		Level:   logLevel,
		LogDir:  logDir,
		Service: "pipeline",
		Quiet:   quiet,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	if mutate != nil {
		if err := mutate(&cfg); err != nil {
			logCloser.Close()
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			logCloser.Close()
			return nil, err
		}
	}

	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	var client llm.Client
	if os.Getenv("OPENAI_API_KEY") != "" {
		client, err = llm.NewOpenAIClient(logger)
		if err != nil {
			logger.Warn("LLM client unavailable, summaries will carry a placeholder", "error", err)
			client = nil
		}
	} else {
		logger.Info("OPENAI_API_KEY not set, AI recommendations disabled")
	}

	var metrics *observability.PipelineMetrics
	if withMetrics {
		metrics = observability.InitMetrics()
	}

	health := resilience.NewHealthRegistry(logger)

	orch := orchestrator.New(cfg, st, stages.Pipeline(), orchestrator.Options{
		LLM:     client,
		Metrics: metrics,
		Health:  health,
		Logger:  logger,
	})

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		orch:      orch,
		health:    health,
		logCloser: logCloser,
	}, nil
}

func (r *runtime) close() {
	r.orch.Close()
	if err := r.store.Close(); err != nil {
		r.logger.Error("failed to close store", "error", err)
	}
	r.logCloser.Close()
}

// formatDuration renders a nullable duration in seconds for display.
func formatDuration(seconds *int64) string {
	if seconds == nil {
		return "-"
	}
	return fmt.Sprintf("%ds", *seconds)
}
