// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools is the capability registry the plan executor dispatches
// into. Each tool is registered once at startup as a Descriptor with a
// declared parameter allow-list; the executor filters step arguments
// against that list before invoking the tool.
//
// The built-in catalog covers shell execution with self-correction,
// concurrent code generation, workspace file operations, git and GitHub
// actions, and web search/fetch.
package tools
