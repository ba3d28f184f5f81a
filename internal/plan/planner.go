// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/llm"
	"github.com/knightcli/knight/internal/tools"
)

// =============================================================================
// PLANNING ERRORS
// =============================================================================

// PlanError reports why a response could not become a plan. StepIndex
// is 1-based and zero when the failure is not tied to a step.
type PlanError struct {
	StepIndex int
	Reason    string
}

func (e *PlanError) Error() string {
	if e.StepIndex > 0 {
		return fmt.Sprintf("invalid plan: step %d %s", e.StepIndex, e.Reason)
	}
	return "invalid plan: " + e.Reason
}

// =============================================================================
// PLANNER
// =============================================================================

// Planner turns a goal into a validated Plan with one model call.
type Planner struct {
	model    llm.Client
	registry *tools.Registry
	console  *display.Console
	maxSteps int
}

// NewPlanner wires a planner.
func NewPlanner(model llm.Client, registry *tools.Registry, console *display.Console, maxSteps int) *Planner {
	return &Planner{
		model:    model,
		registry: registry,
		console:  console,
		maxSteps: maxSteps,
	}
}

// plannerSystemPrompt is the persona and policy preamble.
const plannerSystemPrompt = `You are Knight, an expert software engineering agent. You decompose a user's goal into a precise, ordered JSON plan of tool invocations.

Rules:
- Respond with ONLY a JSON array of steps. Each step is an object with "command" (string), "arguments" (object), and "reasoning" (string).
- Use only the tools listed in the catalog. Do not invent commands.
- The final step must be {"command": "task_complete", "arguments": {"message": "..."}}.
- When later steps must run inside a subdirectory created by an earlier step, pass that directory through the tool's directory argument.
- Prefer generate_code_concurrently when creating multiple files.`

// Generate issues one streaming model call and returns the validated
// plan, or a PlanError. No partial plan is ever returned.
func (p *Planner) Generate(ctx context.Context, goal string, fileContext string) (*Plan, error) {
	var prompt strings.Builder
	prompt.WriteString("### Available Tools\n\n")
	prompt.WriteString(p.registry.CatalogText())
	if fileContext != "" {
		prompt.WriteString("\n### Current Context\n\n")
		prompt.WriteString(fileContext)
	}
	prompt.WriteString("\n---\nGenerate the JSON plan for the following goal:\n**Goal:** ")
	prompt.WriteString(goal)

	// The spinner runs until the first token arrives, then the raw
	// response is echoed dim as it streams in.
	status := display.StartStatus("The Knight is formulating a plan")
	echo := p.console.Stream()
	var sb strings.Builder
	received := false
	err := p.model.Stream(ctx, llm.Request{
		System: plannerSystemPrompt,
		Prompt: prompt.String(),
	}, func(chunk llm.Chunk) {
		if chunk.Content == "" {
			return
		}
		if !received {
			received = true
			status.Stop()
		}
		sb.WriteString(chunk.Content)
		echo.Write(chunk.Content)
	})
	status.Stop()
	echo.Finish()
	if err != nil {
		return nil, fmt.Errorf("planning call failed: %w", err)
	}
	response := sb.String()

	raw, err := ExtractJSONArray(response)
	if err != nil {
		return nil, err
	}

	var steps []Step
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, &PlanError{Reason: "the response is not a valid JSON array of steps: " + err.Error()}
	}

	if err := p.validate(steps); err != nil {
		return nil, err
	}
	return New(goal, steps), nil
}

// validate enforces the all-or-nothing structural contract. The first
// violation short-circuits with its 1-based step index.
func (p *Planner) validate(steps []Step) error {
	if len(steps) == 0 {
		return &PlanError{Reason: "the plan is empty"}
	}
	if p.maxSteps > 0 && len(steps) > p.maxSteps {
		return &PlanError{Reason: fmt.Sprintf("the plan has %d steps, over the %d step limit", len(steps), p.maxSteps)}
	}
	for i, step := range steps {
		if step.Command == "" {
			return &PlanError{StepIndex: i + 1, Reason: "is missing the required 'command' key"}
		}
		if step.Command == TaskComplete {
			continue
		}
		if _, ok := p.registry.Lookup(step.Command); !ok {
			return &PlanError{StepIndex: i + 1, Reason: fmt.Sprintf("uses an unknown command: %q", step.Command)}
		}
	}
	return nil
}

// =============================================================================
// JSON EXTRACTION
// =============================================================================

var fencedJSONRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")

// ExtractJSONArray pulls the plan array out of a model response:
// a fenced json block wins; otherwise the outermost bracketed slice of
// the raw text is used. Neither present is a planning failure.
func ExtractJSONArray(response string) (string, error) {
	if m := fencedJSONRegex.FindStringSubmatch(response); m != nil {
		return m[1], nil
	}
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || end < start {
		return "", &PlanError{Reason: "no JSON array found in the model response"}
	}
	return response[start : end+1], nil
}
