// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history persists an audit trail of plan runs in SQLite.
//
// Every run, every step disposition, and the final outcome are recorded
// so a past session can be reconstructed after the fact. The store
// implements plan.Recorder and is safe to drop in as a no-op replacement
// target: the executor treats recording failures as non-fatal.
package history
