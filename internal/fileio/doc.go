// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fileio is the workspace file layer. Every path the model
// names is resolved against a single root directory and rejected if it
// escapes, so a bad plan cannot touch files outside the project.
package fileio
