// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/AleutianAI/AleutianFlow/services/pipeline/resilience"
)

// ResourceChecker reports host resource pressure before an execution is
// admitted. This is explicit backpressure, not a retryable condition: a
// breach fails the call immediately with *ResourceExhaustionError.
type ResourceChecker interface {
	Check() error
}

// HostResourceChecker probes the local host via gopsutil.
type HostResourceChecker struct {
	// MemoryPercentLimit rejects execution when used memory exceeds this
	// percentage (default: 90).
	MemoryPercentLimit float64

	// DiskPercentLimit rejects execution when the DiskPath volume is
	// fuller than this percentage (default: 95).
	DiskPercentLimit float64

	// DiskPath is the volume to probe (default: "/").
	DiskPath string
}

// NewHostResourceChecker returns a checker with default thresholds.
func NewHostResourceChecker() *HostResourceChecker {
	return &HostResourceChecker{
		MemoryPercentLimit: 90,
		DiskPercentLimit:   95,
		DiskPath:           "/",
	}
}

// Check implements the ResourceChecker interface.
func (c *HostResourceChecker) Check() error {
	vm, err := mem.VirtualMemory()
	if err == nil && vm.UsedPercent > c.MemoryPercentLimit {
		return &resilience.ResourceExhaustionError{
			Resource: "memory",
			Message:  fmt.Sprintf("memory usage too high: %.1f%%", vm.UsedPercent),
		}
	}

	path := c.DiskPath
	if path == "" {
		path = "/"
	}
	du, err := disk.Usage(path)
	if err == nil && du.UsedPercent > c.DiskPercentLimit {
		return &resilience.ResourceExhaustionError{
			Resource: "disk",
			Message:  fmt.Sprintf("disk usage too high: %.1f%%", du.UsedPercent),
		}
	}

	// Probe errors are not execution blockers; a host we cannot measure
	// is treated as healthy.
	return nil
}

// nopResourceChecker admits every execution. Used when resource checks
// are disabled and in tests.
type nopResourceChecker struct{}

func (nopResourceChecker) Check() error { return nil }
