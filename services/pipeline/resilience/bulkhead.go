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
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Bulkhead caps concurrent executions of a protected operation.
//
// Unlike a worker pool, a bulkhead never queues: an attempt to exceed the
// limit fails immediately with *ResourceExhaustionError (resource kind
// "thread_pool"). Use it to isolate a misbehaving agent so it cannot
// monopolize the process.
//
// Thread Safety: safe for concurrent use.
type Bulkhead struct {
	sem *semaphore.Weighted
	max int64
}

// NewBulkhead creates a bulkhead allowing maxConcurrent simultaneous
// callers. Values < 1 are clamped to 1.
func NewBulkhead(maxConcurrent int) *Bulkhead {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Bulkhead{
		sem: semaphore.NewWeighted(int64(maxConcurrent)),
		max: int64(maxConcurrent),
	}
}

// Call runs op inside the bulkhead, or rejects it without blocking.
func (b *Bulkhead) Call(ctx context.Context, op func(context.Context) error) error {
	if !b.sem.TryAcquire(1) {
		return &ResourceExhaustionError{
			Resource: "thread_pool",
			Message:  fmt.Sprintf("maximum concurrent executions (%d) reached", b.max),
		}
	}
	defer b.sem.Release(1)

	return op(ctx)
}
