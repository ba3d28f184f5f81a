// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm provides streaming clients for the model backends the
// engine can talk to: an Ollama native client (/api/generate, NDJSON)
// and an OpenAI-compatible client (/v1/chat/completions, SSE). Both
// implement the Client interface; the planner, executor and code
// generator only ever see that interface.
package llm
