// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/fileio"
	"github.com/knightcli/knight/internal/prompt"
	"github.com/knightcli/knight/internal/session"
	"github.com/knightcli/knight/internal/tools"
)

// scriptedPrompter replays canned answers for the interactive flow.
type scriptedPrompter struct {
	confirms []bool
	choices  []string
	lines    []string
}

func (s *scriptedPrompter) Confirm(question string, def bool) (bool, error) {
	if len(s.confirms) == 0 {
		return def, nil
	}
	v := s.confirms[0]
	s.confirms = s.confirms[1:]
	return v, nil
}

func (s *scriptedPrompter) Choose(question string, choices []prompt.Choice) (string, error) {
	if len(s.choices) == 0 {
		return choices[0].Key, nil
	}
	v := s.choices[0]
	s.choices = s.choices[1:]
	return v, nil
}

func (s *scriptedPrompter) LineWithSuggestion(label, suggestion string) (string, error) {
	if len(s.lines) == 0 {
		return suggestion, nil
	}
	v := s.lines[0]
	s.lines = s.lines[1:]
	return v, nil
}

// callLog records dispatches into registered test tools.
type callLog struct {
	calls []string
	args  []map[string]any
}

func newExecFixture(t *testing.T) (*tools.Registry, *session.Context, *callLog) {
	t.Helper()
	fs, err := fileio.New(t.TempDir(), 1<<20)
	require.NoError(t, err)
	rc := session.NewContext(fs, nil, nil)

	log := &callLog{}
	reg := tools.NewRegistry()
	register := func(name string, fail bool) {
		require.NoError(t, reg.Register(&tools.Descriptor{
			Name:        name,
			Description: "test tool",
			Params: []tools.Param{
				{Name: "command", Hint: "string"},
				{Name: "cwd", Hint: "string"},
			},
			Run: func(ctx context.Context, inv tools.Invocation) error {
				log.calls = append(log.calls, name)
				log.args = append(log.args, inv.Args)
				if fail {
					return errors.New("tool exploded")
				}
				return nil
			},
		}))
	}
	register("tool_a", false)
	register("tool_b", false)
	register("tool_fails", true)
	return reg, rc, log
}

func steps(commands ...string) []Step {
	out := make([]Step, len(commands))
	for i, c := range commands {
		out[i] = Step{Command: c, Arguments: map[string]any{}}
	}
	return out
}

// =============================================================================
// NON-INTERACTIVE EXECUTION
// =============================================================================

func TestExecuteStopsAtSentinel(t *testing.T) {
	reg, rc, log := newExecFixture(t)
	model := &scriptedModel{response: "- [ ] summary"}
	exec := NewExecutor(reg, model, display.NewWriter(&bytes.Buffer{}), nil, false)

	p := New("goal", append(steps("tool_a", "tool_b"),
		Step{Command: TaskComplete, Arguments: map[string]any{"message": "done"}},
		Step{Command: "tool_a"})) // must never run

	outcome, err := exec.Execute(context.Background(), rc, p)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, []string{"tool_a", "tool_b"}, log.calls, "nothing executes after the sentinel")
}

func TestExecuteEndOfListWithoutSentinelCompletes(t *testing.T) {
	reg, rc, log := newExecFixture(t)
	exec := NewExecutor(reg, &scriptedModel{}, display.NewWriter(&bytes.Buffer{}), nil, false)

	outcome, err := exec.Execute(context.Background(), rc, New("goal", steps("tool_a", "tool_b")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Len(t, log.calls, 2)
}

func TestExecuteFailFast(t *testing.T) {
	reg, rc, log := newExecFixture(t)
	exec := NewExecutor(reg, &scriptedModel{}, display.NewWriter(&bytes.Buffer{}), nil, false)

	outcome, err := exec.Execute(context.Background(), rc,
		New("goal", steps("tool_a", "tool_fails", "tool_b")))
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, []string{"tool_a", "tool_fails"}, log.calls, "remaining steps are abandoned")
	assert.Contains(t, err.Error(), "tool_fails")
}

func TestExecuteDropsUndeclaredArguments(t *testing.T) {
	reg, rc, log := newExecFixture(t)
	exec := NewExecutor(reg, &scriptedModel{}, display.NewWriter(&bytes.Buffer{}), nil, false)

	p := New("goal", []Step{{
		Command:   "tool_a",
		Arguments: map[string]any{"command": "ls", "cwd": ".", "bogus": 1},
	}})

	outcome, err := exec.Execute(context.Background(), rc, p)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	require.Len(t, log.args, 1)
	assert.Equal(t, map[string]any{"command": "ls", "cwd": "."}, log.args[0],
		"undeclared keys are dropped with a warning, never an error")
}

func TestExecuteUnknownToolIsFatal(t *testing.T) {
	reg, rc, log := newExecFixture(t)
	exec := NewExecutor(reg, &scriptedModel{}, display.NewWriter(&bytes.Buffer{}), nil, false)

	// Validation normally prevents this; an interactive edit can still
	// introduce it.
	outcome, err := exec.Execute(context.Background(), rc, New("goal", steps("tool_a", "nonsense")))
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Contains(t, err.Error(), "unknown command")
	assert.Equal(t, []string{"tool_a"}, log.calls)
}

// =============================================================================
// INTERACTIVE EXECUTION
// =============================================================================

func TestExecuteInteractiveAbortAtSecondStep(t *testing.T) {
	reg, rc, log := newExecFixture(t)
	prompter := &scriptedPrompter{
		confirms: []bool{true},
		choices:  []string{"e", "a"},
	}
	exec := NewExecutor(reg, &scriptedModel{response: "- checklist"},
		display.NewWriter(&bytes.Buffer{}), prompter, true)

	outcome, err := exec.Execute(context.Background(), rc, New("goal", steps("tool_a", "tool_b")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAborted, outcome)
	assert.Equal(t, []string{"tool_a"}, log.calls, "the aborted step's tool is never invoked")
}

func TestExecuteInteractiveDeclineConfirmation(t *testing.T) {
	reg, rc, log := newExecFixture(t)
	prompter := &scriptedPrompter{confirms: []bool{false}}
	exec := NewExecutor(reg, &scriptedModel{response: "- checklist"},
		display.NewWriter(&bytes.Buffer{}), prompter, true)

	outcome, err := exec.Execute(context.Background(), rc, New("goal", steps("tool_a")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAborted, outcome)
	assert.Empty(t, log.calls)
}

func TestExecuteInteractiveSkip(t *testing.T) {
	reg, rc, log := newExecFixture(t)
	prompter := &scriptedPrompter{
		confirms: []bool{true},
		choices:  []string{"s", "e"},
	}
	exec := NewExecutor(reg, &scriptedModel{response: "- checklist"},
		display.NewWriter(&bytes.Buffer{}), prompter, true)

	outcome, err := exec.Execute(context.Background(), rc, New("goal", steps("tool_a", "tool_b")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, []string{"tool_b"}, log.calls)
}

func TestExecuteInteractiveEditReplacesStep(t *testing.T) {
	reg, rc, log := newExecFixture(t)
	prompter := &scriptedPrompter{
		confirms: []bool{true},
		choices:  []string{"m"},
		lines:    []string{`{"command": "tool_b", "arguments": {"command": "edited"}}`},
	}
	exec := NewExecutor(reg, &scriptedModel{response: "- checklist"},
		display.NewWriter(&bytes.Buffer{}), prompter, true)

	outcome, err := exec.Execute(context.Background(), rc, New("goal", steps("tool_a")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, []string{"tool_b"}, log.calls)
	assert.Equal(t, "edited", log.args[0]["command"])
}

func TestExecuteInteractiveEditIntoSentinelCompletes(t *testing.T) {
	reg, rc, log := newExecFixture(t)
	prompter := &scriptedPrompter{
		confirms: []bool{true},
		choices:  []string{"m"},
		lines:    []string{`{"command": "task_complete", "arguments": {"message": "done early"}}`},
	}
	exec := NewExecutor(reg, &scriptedModel{response: "- checklist"},
		display.NewWriter(&bytes.Buffer{}), prompter, true)

	outcome, err := exec.Execute(context.Background(), rc, New("goal", steps("tool_a", "tool_b")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Empty(t, log.calls, "the sentinel is never dispatched, even when introduced by an edit")
}

func TestExecuteInteractiveMalformedEditSkips(t *testing.T) {
	reg, rc, log := newExecFixture(t)
	prompter := &scriptedPrompter{
		confirms: []bool{true},
		choices:  []string{"m", "e"},
		lines:    []string{"this is not json"},
	}
	exec := NewExecutor(reg, &scriptedModel{response: "- checklist"},
		display.NewWriter(&bytes.Buffer{}), prompter, true)

	outcome, err := exec.Execute(context.Background(), rc, New("goal", steps("tool_a", "tool_b")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, []string{"tool_b"}, log.calls,
		"a discarded edit skips the step, never executes it malformed")
}

// =============================================================================
// AUDIT RECORDING
// =============================================================================

type fakeRecorder struct {
	began    int
	steps    []string
	outcomes []string
}

func (r *fakeRecorder) BeginRun(p *Plan, interactive bool) error {
	r.began++
	return nil
}

func (r *fakeRecorder) RecordStep(planID string, index int, step Step, status, detail string) error {
	r.steps = append(r.steps, step.Command+":"+status)
	return nil
}

func (r *fakeRecorder) EndRun(planID string, outcome string) error {
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

func TestExecuteRecordsRun(t *testing.T) {
	reg, rc, _ := newExecFixture(t)
	rec := &fakeRecorder{}
	exec := NewExecutor(reg, &scriptedModel{}, display.NewWriter(&bytes.Buffer{}), nil, false).
		WithRecorder(rec)

	p := New("goal", append(steps("tool_a", "tool_fails"),
		Step{Command: TaskComplete, Arguments: map[string]any{}}))
	outcome, err := exec.Execute(context.Background(), rc, p)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	assert.Equal(t, 1, rec.began)
	assert.Equal(t, []string{"tool_a:success", "tool_fails:failed"}, rec.steps)
	assert.Equal(t, []string{"failed"}, rec.outcomes)
}

func TestExecuteChecklistFailureDoesNotBlock(t *testing.T) {
	reg, rc, log := newExecFixture(t)
	prompter := &scriptedPrompter{confirms: []bool{true}}
	exec := NewExecutor(reg, &scriptedModel{err: errors.New("model down")},
		display.NewWriter(&bytes.Buffer{}), prompter, true)

	outcome, err := exec.Execute(context.Background(), rc, New("goal", steps("tool_a")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Len(t, log.calls, 1, "a failed summary gates nothing")
}
