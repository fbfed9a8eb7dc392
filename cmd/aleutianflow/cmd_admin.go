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
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianFlow/services/pipeline/store"
)

func runHistory(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	runs, err := rt.store.History(cmd.Context(), store.HistoryFilter{
		Limit:  historyLimit,
		Status: historyStatus,
	})
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No pipeline runs found.")
		return nil
	}

	fmt.Printf("%-6s %-24s %-10s %-10s %-10s %s\n",
		"ID", "PROJECT", "TYPE", "STATUS", "DURATION", "CREATED")
	for _, r := range runs {
		fmt.Printf("%-6d %-24s %-10s %-10s %-10s %s\n",
			r.ID, r.ProjectName, r.ProjectType, r.Status,
			formatDuration(r.Duration), r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	days := cleanupDays
	if days <= 0 {
		days = rt.cfg.RetentionDays
	}

	deleted, err := rt.store.Cleanup(cmd.Context(), days)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d pipeline runs older than %d days.\n", deleted, days)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	stats, err := rt.store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("%-24s %d\n", k, stats[k])
	}

	agg, err := rt.store.Statistics(cmd.Context(), 30)
	if err != nil {
		return err
	}
	fmt.Println("\nLast 30 days:")
	fmt.Printf("%-24s %d\n", "total_runs", agg.TotalRuns)
	fmt.Printf("%-24s %d\n", "successful_runs", agg.SuccessfulRuns)
	fmt.Printf("%-24s %d\n", "failed_runs", agg.FailedRuns)
	if agg.AvgDuration != nil {
		fmt.Printf("%-24s %.1fs\n", "avg_duration", *agg.AvgDuration)
	}
	return nil
}
