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
	"time"
)

// WithDeadline runs op with a wall-clock deadline.
//
// The operation receives a context that is cancelled at the deadline;
// cooperative operations should observe it and stop early. If op has not
// returned when the deadline expires, it is abandoned: the goroutine keeps
// running until op returns on its own, and the caller receives a
// *TimeoutError naming the operation and the configured timeout.
//
// Inputs:
//
//	ctx - Parent context; its cancellation also aborts the wait.
//	name - Operation name used in the TimeoutError.
//	timeout - Wall-clock budget. Values <= 0 disable the deadline.
//	op - The protected operation.
//
// Outputs:
//
//	error - op's error, *TimeoutError on expiry, or ctx.Err() if the
//	parent context was cancelled first.
func WithDeadline(ctx context.Context, name string, timeout time.Duration, op func(context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TimeoutError{Operation: name, Timeout: timeout}
	}
}
