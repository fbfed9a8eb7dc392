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
	"math/rand"
	"time"
)

// RetryPolicy retries an operation with bounded exponential backoff.
//
// Delay before attempt n (n >= 2) is
//
//	min(BaseDelay * Multiplier^(n-2), MaxDelay)
//
// optionally scaled by a uniform random factor in [0.5, 1.0) when Jitter
// is enabled. The last error is returned annotated with the attempt count.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first
	// (default: 3).
	MaxAttempts int

	// BaseDelay is the delay before the second attempt (default: 1s).
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff (default: 60s).
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor (default: 2.0).
	Multiplier float64

	// Jitter scales each delay by a random factor in [0.5, 1.0).
	Jitter bool
}

// DefaultRetryPolicy returns sensible defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// normalized returns a copy with zero fields replaced by defaults.
func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// delayFor computes the backoff delay before attempt n (1-based, n >= 2).
func (p RetryPolicy) delayFor(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * pow(p.Multiplier, attempt-2))
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	if p.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
	}
	return d
}

// Do runs op up to MaxAttempts times.
//
// Backoff sleeps respect ctx: cancellation during a sleep aborts the loop
// and returns the context error wrapped with the attempt count.
//
// Outputs:
//
//	error - nil as soon as one attempt succeeds; otherwise the last
//	attempt's error annotated with how many attempts were made.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(p.delayFor(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("retry aborted before attempt %d of %d: %w",
					attempt, p.MaxAttempts, ctx.Err())
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, lastErr)
}

// pow is a small integer-exponent power helper; avoids pulling in math for
// the only float exponentiation in the package.
func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
