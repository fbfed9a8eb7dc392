// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging configures structured logging for AleutianFlow
// components.
//
// Built on slog with two destinations: stderr (text by default, for CLI
// use) and an optional JSON log file. The CLI and the API server share
// one setup path so both produce the same shape of logs.
//
// # Usage
//
//	logger, closer, err := logging.New(logging.Config{
//	    Level:   "info",
//	    LogDir:  "~/.aleutianflow/logs",
//	    Service: "pipeline",
//	})
//	if err != nil { ... }
//	defer closer.Close()
//	logger.Info("pipeline run starting", "run_id", runID)
//
// This package does not redact anything. Callers must keep tokens and
// secrets out of log attributes.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config controls where logs go and what gets through.
//
// The zero value yields Info-level text logs on stderr with no file.
type Config struct {
	// Level is the minimum severity: "debug", "info", "warn" or
	// "error". Empty means info.
	Level string

	// LogDir enables file logging. When set, a JSON log file named
	// {Service}_{YYYY-MM-DD}.log is appended to in this directory,
	// which is created if missing. Supports ~ expansion.
	LogDir string

	// Service tags every entry with a "service" attribute and names
	// the log file. Empty means "aleutianflow".
	Service string

	// JSON switches the stderr stream to JSON. File output is always
	// JSON regardless.
	JSON bool

	// Quiet drops the stderr stream entirely; only the file (if any)
	// receives logs.
	Quiet bool
}

// New builds a logger from cfg. The returned closer owns the log file
// handle (a no-op closer when file logging is off) and must be closed
// on shutdown.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	service := cfg.Service
	if service == "" {
		service = "aleutianflow"
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	closer := io.Closer(nopCloser{})
	if cfg.LogDir != "" {
		dir := expandPath(cfg.LogDir)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
		name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
		file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closer = file
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		// Quiet with no file still needs a valid handler.
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	handler = handler.WithAttrs([]slog.Attr{slog.String("service", service)})
	return slog.New(handler), closer, nil
}

// Default returns an Info-level stderr logger for simple CLI paths.
func Default() *slog.Logger {
	logger, _, _ := New(Config{})
	return logger
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// multiHandler fans each record out to every destination, so stderr can
// stay human-readable while the file stays machine-parseable.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
