// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads, validates, and persists knight's TOML
// configuration: model endpoints, hosting-platform credentials, and
// agent tuning parameters.
//
// Configuration file location: ~/.knight/config.toml. Built-in defaults
// apply when the file is absent; KNIGHT_* and GITHUB_* environment
// variables override both.
package config
