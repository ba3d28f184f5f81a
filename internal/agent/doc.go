// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent wires the planner, executor, tool catalog, and session
// state into a single goal-driven run loop.
package agent
