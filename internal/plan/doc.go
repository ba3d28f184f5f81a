// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package plan turns a natural-language goal into a validated, ordered
// list of steps and executes them.
//
// The Planner issues a single streaming model call, extracts a JSON
// array from the response, and validates it all-or-nothing against the
// tool registry. The Executor then drives the plan step by step:
// interactive runs get per-step dispositions (execute, skip, edit,
// abort); non-interactive runs execute everything. The reserved
// task_complete sentinel marks normal termination.
package plan
