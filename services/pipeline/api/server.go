// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the pipeline over HTTP.
//
// Runs are started asynchronously: POST /api/v1/pipeline kicks off a
// run and returns its id; clients poll the progress and status
// endpoints. One run at a time; a second submission while a run is in
// flight gets 409.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianFlow/services/pipeline/orchestrator"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/resilience"
	"github.com/AleutianAI/AleutianFlow/services/pipeline/store"
)

// Server wires the orchestrator and its store into a gin router.
type Server struct {
	orch   *orchestrator.Orchestrator
	store  *store.Store
	health *resilience.HealthRegistry
	logger *slog.Logger

	running atomic.Bool
}

// NewServer builds the API surface. health may be nil; /health then
// reports only liveness.
func NewServer(orch *orchestrator.Orchestrator, st *store.Store, health *resilience.HealthRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{orch: orch, store: st, health: health, logger: logger}
}

// Router assembles the route table.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutianflow-pipeline"))

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/pipeline", s.handleStartPipeline)
		v1.GET("/pipeline/:id", s.handleGetRun)
		v1.GET("/pipeline/:id/progress", s.handleProgress)
		v1.GET("/history", s.handleHistory)
		v1.GET("/statistics", s.handleStatistics)
		v1.GET("/agents/:name/status", s.handleAgentStatus)
	}

	return router
}

// startRequest is the POST /v1/pipeline body.
type startRequest struct {
	Project map[string]any `json:"project" binding:"required"`
}

func (s *Server) handleStartPipeline(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}

	if !s.running.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{"error": "a pipeline run is already in progress"})
		return
	}

	previous := s.orch.CurrentRunID()

	// The run outlives the HTTP request; detach from its context.
	go func() {
		defer s.running.Store(false)
		if _, err := s.orch.ExecutePipeline(context.Background(), req.Project); err != nil {
			s.logger.Error("pipeline run failed", "error", err)
		}
	}()

	// The run id is assigned as the first step of execution; wait
	// briefly so the client gets it back for progress polling.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if id := s.orch.CurrentRunID(); id != previous {
			c.JSON(http.StatusAccepted, gin.H{"status": "started", "run_id": id})
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) handleProgress(c *gin.Context) {
	var id int64
	if _, err := fmt.Sscanf(c.Param("id"), "%d", &id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run id must be an integer"})
		return
	}

	progress, err := s.orch.ProgressForRun(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (s *Server) handleGetRun(c *gin.Context) {
	var id int64
	if _, err := fmt.Sscanf(c.Param("id"), "%d", &id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run id must be an integer"})
		return
	}

	run, err := s.store.GetRun(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleHistory(c *gin.Context) {
	filter := store.HistoryFilter{
		Status: c.Query("status"),
		UserID: c.Query("user_id"),
	}
	if limit := c.Query("limit"); limit != "" {
		if _, err := fmt.Sscanf(limit, "%d", &filter.Limit); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
	}

	runs, err := s.store.History(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) handleStatistics(c *gin.Context) {
	days := 30
	if d := c.Query("days"); d != "" {
		if _, err := fmt.Sscanf(d, "%d", &days); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer"})
			return
		}
	}

	stats, err := s.store.Statistics(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleAgentStatus(c *gin.Context) {
	status, err := s.orch.AgentStatus(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	report := s.health.RunAll(c.Request.Context())
	code := http.StatusOK
	if report.Overall == resilience.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}
