// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"path/filepath"

	"github.com/knightcli/knight/internal/config"
	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/history"
	"github.com/knightcli/knight/internal/util"
)

const historyListLimit = 20

// HandleHistory lists recent runs, or the steps of one run when an id
// is given.
func HandleHistory(args Args) int {
	console := display.New()

	dir, err := config.Dir()
	if err != nil {
		console.Error("%v", err)
		return 1
	}
	store, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		console.Error("%v", err)
		return 1
	}
	defer store.Close()

	if args.Subcommand != "" {
		return showRun(console, store, args.Subcommand)
	}
	return listRuns(console, store)
}

func listRuns(console *display.Console, store *history.Store) int {
	runs, err := store.Recent(historyListLimit)
	if err != nil {
		console.Error("%v", err)
		return 1
	}
	if len(runs) == 0 {
		console.Dim("No runs recorded yet.")
		return 0
	}

	console.Title("Recent runs")
	for _, r := range runs {
		console.Printf("%s  %-9s  %2d steps  %s\n",
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Outcome,
			r.StepCount,
			util.TruncateWidth(r.Goal, 60))
		console.Dim("  id: %s", r.ID)
	}
	return 0
}

func showRun(console *display.Console, store *history.Store, runID string) int {
	steps, err := store.Steps(runID)
	if err != nil {
		console.Error("%v", err)
		return 1
	}
	if len(steps) == 0 {
		console.Warn("No steps recorded for run %s.", runID)
		return 0
	}

	console.Title("Run " + runID)
	for _, s := range steps {
		line := s.Command
		if s.Detail != "" {
			line += ": " + util.TruncateWidth(s.Detail, 60)
		}
		console.Printf("%2d. %-9s %s\n", s.Index+1, s.Status, line)
	}
	return 0
}
