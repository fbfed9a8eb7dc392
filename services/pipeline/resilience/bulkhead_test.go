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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBulkhead_AllowsUpToLimit(t *testing.T) {
	bh := NewBulkhead(2)
	ctx := context.Background()

	release := make(chan struct{})
	var running atomic.Int64
	var rejected atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := bh.Call(ctx, func(context.Context) error {
				running.Add(1)
				<-release
				return nil
			})
			var ree *ResourceExhaustionError
			if errors.As(err, &ree) {
				rejected.Add(1)
			}
		}()
	}

	// Excess calls must be rejected immediately, not queued.
	time.Sleep(50 * time.Millisecond)
	if got := running.Load(); got != 2 {
		t.Errorf("concurrent executions = %d, want 2", got)
	}
	if got := rejected.Load(); got != 3 {
		t.Errorf("rejections = %d, want 3", got)
	}
	close(release)
	wg.Wait()
}

func TestBulkhead_RejectionNamesThreadPool(t *testing.T) {
	bh := NewBulkhead(1)
	ctx := context.Background()

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		bh.Call(ctx, func(context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	err := bh.Call(ctx, func(context.Context) error { return nil })
	close(release)
	<-done

	var ree *ResourceExhaustionError
	if !errors.As(err, &ree) {
		t.Fatalf("err = %v, want *ResourceExhaustionError", err)
	}
	if ree.Resource != "thread_pool" {
		t.Errorf("Resource = %s, want thread_pool", ree.Resource)
	}
}

func TestBulkhead_ReleasesSlotAfterReturn(t *testing.T) {
	bh := NewBulkhead(1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := bh.Call(ctx, func(context.Context) error { return nil }); err != nil {
			t.Fatalf("sequential call %d: err = %v", i, err)
		}
	}
}

func TestBulkhead_ReleasesSlotAfterError(t *testing.T) {
	bh := NewBulkhead(1)
	ctx := context.Background()

	bh.Call(ctx, func(context.Context) error { return errBoom })
	if err := bh.Call(ctx, func(context.Context) error { return nil }); err != nil {
		t.Errorf("err after failed call = %v, want nil", err)
	}
}
