// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm exposes the text-completion collaborator used by the
// pipeline summary step. The orchestrator only ever needs a single prompt
// in, free text out; model selection and transport live behind Client.
package llm

import "context"

// Client is the minimal contract the pipeline has with any LLM backend.
//
// Failures are expected and must degrade gracefully at the call site;
// no pipeline outcome may depend on an Invoke succeeding.
type Client interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// StaticClient returns a fixed response for every prompt. Used in tests
// and as a stand-in when no backend is configured.
type StaticClient struct {
	Response string
	Err      error
}

// Invoke implements the Client interface.
func (s *StaticClient) Invoke(ctx context.Context, prompt string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Response, nil
}
