// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/llm"
	"github.com/knightcli/knight/internal/prompt"
	"github.com/knightcli/knight/internal/session"
	"github.com/knightcli/knight/internal/tools"
)

// =============================================================================
// OUTCOMES
// =============================================================================

// Outcome is the terminal state of one plan execution.
type Outcome int

const (
	// OutcomeCompleted means the sentinel was reached or the list ended.
	OutcomeCompleted Outcome = iota
	// OutcomeAborted means the user stopped execution.
	OutcomeAborted
	// OutcomeFailed means a step failed and the rest was abandoned.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Prompter is the interactive surface the executor needs. Satisfied by
// *prompt.Prompter.
type Prompter interface {
	Confirm(question string, def bool) (bool, error)
	Choose(question string, choices []prompt.Choice) (string, error)
	LineWithSuggestion(label, suggestion string) (string, error)
}

// Recorder receives execution events for the audit log. Implementations
// must tolerate being called from a single goroutine only.
type Recorder interface {
	BeginRun(p *Plan, interactive bool) error
	RecordStep(planID string, index int, step Step, status, detail string) error
	EndRun(planID string, outcome string) error
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor drives a validated plan step by step. Execution is strictly
// sequential; only a step's own internals may fan out.
type Executor struct {
	registry    *tools.Registry
	model       llm.Client
	console     *display.Console
	prompter    Prompter      // nil in non-interactive mode
	github      *tools.GitHub // nil disables the credential pre-flight
	recorder    Recorder      // nil disables the audit log
	interactive bool
}

// NewExecutor wires an executor.
func NewExecutor(registry *tools.Registry, model llm.Client, console *display.Console,
	prompter Prompter, interactive bool) *Executor {
	return &Executor{
		registry:    registry,
		model:       model,
		console:     console,
		prompter:    prompter,
		interactive: interactive,
	}
}

// WithGitHub enables the credential pre-flight for plans that contain
// git or GitHub steps.
func (e *Executor) WithGitHub(gh *tools.GitHub) *Executor {
	e.github = gh
	return e
}

// WithRecorder attaches the audit log.
func (e *Executor) WithRecorder(r Recorder) *Executor {
	e.recorder = r
	return e
}

// Execute runs the plan. The returned error is non-nil only for
// OutcomeFailed; an abort is a clean stop, not an error. Already
// applied side effects are never rolled back.
func (e *Executor) Execute(ctx context.Context, rc *session.Context, p *Plan) (Outcome, error) {
	e.beginRun(rc, p)

	if err := e.preflight(ctx, p); err != nil {
		e.console.Error("Could not verify GitHub credentials. Aborting plan.")
		return e.finish(rc, p, OutcomeFailed, err)
	}

	if e.interactive {
		e.showChecklist(ctx, rc, p)
		ok, err := e.prompter.Confirm("Proceed with the execution of this plan?", true)
		if err != nil || !ok {
			e.console.Warn("Plan execution aborted by user.")
			return e.finish(rc, p, OutcomeAborted, nil)
		}
	}

	total := p.NonTerminalCount()
	current := 0

	for i, step := range p.Steps {
		if step.IsTerminal() {
			e.console.Success("Knight Task Complete")
			e.console.Info("%s", step.Message())
			e.recordStep(rc, p, i, step, "sentinel", step.Message())
			return e.finish(rc, p, OutcomeCompleted, nil)
		}
		current++

		e.console.Rule(fmt.Sprintf("Step %d/%d: %s", current, total, step.Command))
		if step.Reasoning != "" {
			e.console.Reasoning(step.Reasoning)
		}

		if e.interactive {
			disposition, edited, err := e.decide(step)
			if err != nil {
				e.console.Warn("Plan execution aborted by user.")
				e.recordStep(rc, p, i, step, "aborted", "")
				return e.finish(rc, p, OutcomeAborted, nil)
			}
			switch disposition {
			case dispositionSkip:
				e.console.Dim("Step skipped.")
				e.recordStep(rc, p, i, step, "skipped", "")
				continue
			case dispositionAbort:
				e.console.Warn("Plan execution aborted by user.")
				e.recordStep(rc, p, i, step, "aborted", "")
				return e.finish(rc, p, OutcomeAborted, nil)
			case dispositionExecute:
				step = edited
			}
			// An edit may turn the step into the sentinel; it is never
			// dispatched.
			if step.IsTerminal() {
				e.console.Success("Knight Task Complete")
				e.console.Info("%s", step.Message())
				e.recordStep(rc, p, i, step, "sentinel", step.Message())
				return e.finish(rc, p, OutcomeCompleted, nil)
			}
		}

		if err := e.dispatch(ctx, rc, step); err != nil {
			if errors.Is(err, tools.ErrAborted) {
				e.console.Warn("Plan execution aborted by user.")
				e.recordStep(rc, p, i, step, "aborted", err.Error())
				return e.finish(rc, p, OutcomeAborted, nil)
			}
			e.console.Error("Step %q failed. Aborting plan.", step.Command)
			e.recordStep(rc, p, i, step, "failed", err.Error())
			return e.finish(rc, p, OutcomeFailed,
				fmt.Errorf("step %d (%s) failed: %w", current, step.Command, err))
		}
		e.recordStep(rc, p, i, step, "success", "")
	}

	// Running off the end without the sentinel is still a valid finish.
	return e.finish(rc, p, OutcomeCompleted, nil)
}

// preflight verifies stored credentials before plans that will touch
// git or the hosting platform.
func (e *Executor) preflight(ctx context.Context, p *Plan) error {
	if e.github == nil {
		return nil
	}
	for _, step := range p.Steps {
		if strings.Contains(step.Command, "git") || strings.Contains(step.Command, "github") {
			return e.github.CheckAuth(ctx)
		}
	}
	return nil
}

// showChecklist renders a short model-written summary of the plan. It
// is best effort: any failure falls back to the raw plan JSON already
// shown, and never blocks execution.
func (e *Executor) showChecklist(ctx context.Context, rc *session.Context, p *Plan) {
	status := display.StartStatus("Summarizing the plan")
	summary, err := llm.Collect(ctx, e.model, llm.Request{
		System: "Summarize the given execution plan as a short markdown checklist, one line per step, no preamble.",
		Prompt: p.JSON(),
	})
	status.Stop()
	if err != nil || strings.TrimSpace(summary) == "" {
		rc.Logger().Debug("plan summary unavailable", "error", err)
		return
	}
	e.console.Markdown(summary)
}

// =============================================================================
// DISPOSITIONS
// =============================================================================

type disposition int

const (
	dispositionExecute disposition = iota
	dispositionSkip
	dispositionAbort
)

// decide asks the user what to do with the step. Edit re-parses the
// step from JSON; a malformed edit is discarded and the step skipped,
// never executed malformed.
func (e *Executor) decide(step Step) (disposition, Step, error) {
	choice, err := e.prompter.Choose("Run this step?", []prompt.Choice{
		{Key: "e", Label: "xecute"},
		{Key: "s", Label: "kip"},
		{Key: "m", Label: "odify"},
		{Key: "a", Label: "bort"},
	})
	if err != nil {
		return dispositionAbort, step, err
	}

	switch choice {
	case "s":
		return dispositionSkip, step, nil
	case "a":
		return dispositionAbort, step, nil
	case "m":
		encoded, err := json.Marshal(step)
		if err != nil {
			return dispositionSkip, step, nil
		}
		input, err := e.prompter.LineWithSuggestion("step> ", string(encoded))
		if err != nil {
			return dispositionAbort, step, err
		}
		var edited Step
		if err := json.Unmarshal([]byte(input), &edited); err != nil || edited.Command == "" {
			e.console.Warn("Edited step is not valid JSON. Skipping the step.")
			return dispositionSkip, step, nil
		}
		return dispositionExecute, edited, nil
	default:
		return dispositionExecute, step, nil
	}
}

// =============================================================================
// DISPATCH
// =============================================================================

// dispatch resolves the tool, filters the arguments against its
// declared allow-list, and invokes it.
func (e *Executor) dispatch(ctx context.Context, rc *session.Context, step Step) error {
	descriptor, ok := e.registry.Lookup(step.Command)
	if !ok {
		return fmt.Errorf("unknown command %q", step.Command)
	}

	args, dropped := descriptor.FilterArgs(step.Arguments)
	for _, name := range dropped {
		e.console.Warn("Ignoring unexpected argument %q for %s.", name, step.Command)
	}

	return descriptor.Run(ctx, tools.Invocation{Session: rc, Args: args})
}

// =============================================================================
// AUDIT PLUMBING
// =============================================================================

func (e *Executor) beginRun(rc *session.Context, p *Plan) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.BeginRun(p, e.interactive); err != nil {
		rc.Logger().Debug("audit log unavailable", "error", err)
	}
}

func (e *Executor) recordStep(rc *session.Context, p *Plan, index int, step Step, status, detail string) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordStep(p.ID, index, step, status, detail); err != nil {
		rc.Logger().Debug("audit log unavailable", "error", err)
	}
}

func (e *Executor) finish(rc *session.Context, p *Plan, outcome Outcome, err error) (Outcome, error) {
	if e.recorder != nil {
		if rerr := e.recorder.EndRun(p.ID, outcome.String()); rerr != nil {
			rc.Logger().Debug("audit log unavailable", "error", rerr)
		}
	}
	return outcome, err
}
