// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for the knight CLI:
// atomic file writes, display-width aware truncation, and a bounded
// line ring buffer used to retain the tail of subprocess output.
package util
