// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package display renders knight's human-facing terminal output:
// styled status lines, step rules, syntax-highlighted plan JSON,
// markdown summaries, and a live elapsed-time indicator.
//
// Colors are disabled automatically for non-TTY output and when
// NO_COLOR is set; FORCE_COLOR overrides detection.
package display
