// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package internal provides integration tests for the complete knight
// pipeline: a fake model endpoint, plan generation, validation, and
// execution against a real temporary workspace.
package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knightcli/knight/internal/config"
	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/fileio"
	"github.com/knightcli/knight/internal/history"
	"github.com/knightcli/knight/internal/llm"
	"github.com/knightcli/knight/internal/plan"
	"github.com/knightcli/knight/internal/session"
	"github.com/knightcli/knight/internal/tools"
)

// =============================================================================
// TEST UTILITIES
// =============================================================================

// fakeOllama streams canned responses over the Ollama NDJSON protocol,
// in request order.
func fakeOllama(t *testing.T, responses ...string) *httptest.Server {
	t.Helper()
	call := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		body := responses[len(responses)-1]
		if call < len(responses) {
			body = responses[call]
		}
		call++
		enc := json.NewEncoder(w)
		require.NoError(t, enc.Encode(map[string]any{"response": body}))
		require.NoError(t, enc.Encode(map[string]any{"response": "", "done": true}))
	}))
}

func newModel(t *testing.T, endpoint string) llm.Client {
	t.Helper()
	model, err := llm.New(config.ModelConfig{
		Type:     config.ModelTypeOllama,
		Endpoint: endpoint,
		Name:     "test-model",
	})
	require.NoError(t, err)
	return model
}

func newWorkspace(t *testing.T) *session.Context {
	t.Helper()
	fs, err := fileio.New(t.TempDir(), 1<<20)
	require.NoError(t, err)
	return session.NewContext(fs, nil, nil)
}

// =============================================================================
// END-TO-END: GOAL -> PLAN -> EXECUTION
// =============================================================================

func TestGoalToExecutedPlan(t *testing.T) {
	planJSON := `[
  {"command": "run_shell_command", "arguments": {"command": "echo hello > greeting.txt"}, "reasoning": "seed file"},
  {"command": "create_file", "arguments": {"filename": "README.md", "content": "# demo"}},
  {"command": "task_complete", "arguments": {"message": "All set."}}
]`
	server := fakeOllama(t, "```json\n"+planJSON+"\n```")
	defer server.Close()

	model := newModel(t, server.URL)
	console := display.NewWriter(&bytes.Buffer{})
	rc := newWorkspace(t)

	reg := tools.NewRegistry()
	require.NoError(t, tools.RegisterBuiltins(reg, tools.Deps{
		Model:   model,
		Console: console,
		Agent:   config.Default().Agent,
	}))

	planner := plan.NewPlanner(model, reg, console, 50)
	p, err := planner.Generate(context.Background(), "make a demo project", "")
	require.NoError(t, err)
	require.Equal(t, 2, p.NonTerminalCount())

	exec := plan.NewExecutor(reg, model, console, nil, false)
	outcome, err := exec.Execute(context.Background(), rc, p)
	require.NoError(t, err)
	assert.Equal(t, plan.OutcomeCompleted, outcome)

	greeting, err := os.ReadFile(filepath.Join(rc.WorkDir(), "greeting.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(greeting))

	readme, err := rc.Files().Read("README.md")
	require.NoError(t, err)
	assert.Equal(t, "# demo", readme)
	assert.Contains(t, rc.FilePaths(), "README.md")
}

func TestPlanValidationFailureNeverExecutes(t *testing.T) {
	server := fakeOllama(t, `[{"command": "rm_everything", "arguments": {}}]`)
	defer server.Close()

	model := newModel(t, server.URL)
	console := display.NewWriter(&bytes.Buffer{})

	reg := tools.NewRegistry()
	require.NoError(t, tools.RegisterBuiltins(reg, tools.Deps{
		Model:   model,
		Console: console,
		Agent:   config.Default().Agent,
	}))

	planner := plan.NewPlanner(model, reg, console, 50)
	_, err := planner.Generate(context.Background(), "goal", "")
	require.Error(t, err)

	var perr *plan.PlanError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.StepIndex)
}

func TestFailedStepRecordsAndStops(t *testing.T) {
	planJSON := `[
  {"command": "run_shell_command", "arguments": {"command": "false"}},
  {"command": "create_file", "arguments": {"filename": "never.txt", "content": "x"}},
  {"command": "task_complete", "arguments": {}}
]`
	// Later responses are correction attempts; an identical suggestion
	// makes the runner give up immediately.
	server := fakeOllama(t, planJSON, "false", "false", "false")
	defer server.Close()

	model := newModel(t, server.URL)
	console := display.NewWriter(&bytes.Buffer{})
	rc := newWorkspace(t)

	reg := tools.NewRegistry()
	require.NoError(t, tools.RegisterBuiltins(reg, tools.Deps{
		Model:   model,
		Console: console,
		Agent:   config.Default().Agent,
	}))

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	planner := plan.NewPlanner(model, reg, console, 50)
	p, err := planner.Generate(context.Background(), "goal", "")
	require.NoError(t, err)

	exec := plan.NewExecutor(reg, model, console, nil, false).WithRecorder(store)
	outcome, err := exec.Execute(context.Background(), rc, p)
	require.Error(t, err)
	assert.Equal(t, plan.OutcomeFailed, outcome)

	_, statErr := os.Stat(filepath.Join(rc.WorkDir(), "never.txt"))
	assert.True(t, os.IsNotExist(statErr), "steps after the failure must not run")

	runs, err := store.Recent(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Outcome)

	steps, err := store.Steps(p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	assert.Equal(t, "failed", steps[len(steps)-1].Status)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestConcurrentGenerationAgainstLiveWorkspace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		enc := json.NewEncoder(w)
		require.NoError(t, enc.Encode(map[string]any{"response": "print('ok')"}))
		require.NoError(t, enc.Encode(map[string]any{"response": "", "done": true}))
	}))
	defer server.Close()

	model := newModel(t, server.URL)
	console := display.NewWriter(&bytes.Buffer{})
	rc := newWorkspace(t)

	gen := tools.NewCodeGenerator(model, console, 4)
	files := make([]tools.FileSpec, 8)
	for i := range files {
		files[i] = tools.FileSpec{
			Filename: fmt.Sprintf("mod_%d.py", i),
			Prompt:   "a module",
		}
	}
	require.NoError(t, gen.Generate(context.Background(), rc, files, ""))
	assert.Equal(t, 8, rc.FileCount())
}
