// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the resilience package.
var (
	// ErrCircuitOpen is returned when a call is rejected because the
	// protecting circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrCheckNotRegistered is returned when a health check name is unknown.
	ErrCheckNotRegistered = errors.New("health check not registered")
)

// TimeoutError reports that a protected operation exceeded its deadline.
//
// The operation may still be running in the background; the caller has
// abandoned it and must treat its side effects as undefined.
type TimeoutError struct {
	// Operation names the protected operation, e.g. "yama.Execute".
	Operation string

	// Timeout is the deadline that was exceeded.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s timed out after %s", e.Operation, e.Timeout)
}

// ResourceExhaustionError reports that a system or concurrency limit was
// breached. Resource is a short kind tag: "thread_pool", "memory", "disk".
type ResourceExhaustionError struct {
	Resource string
	Message  string
}

// Error implements the error interface.
func (e *ResourceExhaustionError) Error() string {
	return fmt.Sprintf("resource exhaustion (%s): %s", e.Resource, e.Message)
}
