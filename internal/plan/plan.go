// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// TaskComplete is the reserved sentinel command marking normal
// termination of a plan. It is never dispatched to the registry.
const TaskComplete = "task_complete"

// Step is one instruction of a plan. Arguments are passed through to
// the tool untouched; only their top-level presence is validated.
type Step struct {
	Command   string         `json:"command"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
}

// IsTerminal reports whether the step is the task_complete sentinel.
func (s Step) IsTerminal() bool {
	return s.Command == TaskComplete
}

// Message returns the sentinel's completion message.
func (s Step) Message() string {
	if msg, ok := s.Arguments["message"].(string); ok && msg != "" {
		return msg
	}
	return "The task is complete."
}

// Plan is a validated, ordered sequence of steps for one goal. Plans
// live for a single run and are never persisted.
type Plan struct {
	ID    string `json:"id"`
	Goal  string `json:"goal"`
	Steps []Step `json:"steps"`
}

// New creates a plan with a fresh identifier.
func New(goal string, steps []Step) *Plan {
	return &Plan{
		ID:    uuid.NewString(),
		Goal:  goal,
		Steps: steps,
	}
}

// NonTerminalCount returns how many steps would actually dispatch.
func (p *Plan) NonTerminalCount() int {
	n := 0
	for _, s := range p.Steps {
		if !s.IsTerminal() {
			n++
		}
	}
	return n
}

// JSON renders the steps for display.
func (p *Plan) JSON() string {
	out, err := json.MarshalIndent(p.Steps, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", p.Steps)
	}
	return string(out)
}
