// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the state that accumulates across one agent
// run: the working directory, file contents gathered for model
// context, platform credentials, and handles to background processes
// the run started and must clean up.
package session
