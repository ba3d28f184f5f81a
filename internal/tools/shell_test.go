// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knightcli/knight/internal/config"
	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/fileio"
	"github.com/knightcli/knight/internal/llm"
	"github.com/knightcli/knight/internal/session"
)

// fakeModel is a scripted llm.Client for tests.
type fakeModel struct {
	mu      sync.Mutex
	reply   func(req llm.Request) (string, error)
	calls   int
	prompts []string
}

func (f *fakeModel) Model() string { return "fake" }

func (f *fakeModel) Stream(ctx context.Context, req llm.Request, cb llm.StreamCallback) error {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	text, err := f.reply(req)
	if err != nil {
		return err
	}
	cb(llm.Chunk{Content: text})
	cb(llm.Chunk{Done: true})
	return nil
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxPlanSteps:           50,
		MaxCorrectionRetries:   3,
		CaptureLines:           50,
		DigestLines:            5,
		BackgroundGraceSeconds: 1,
		GenerateConcurrency:    4,
	}
}

func newShellFixture(t *testing.T, model llm.Client) (*ShellRunner, *session.Context) {
	t.Helper()
	fs, err := fileio.New(t.TempDir(), 1<<20)
	require.NoError(t, err)
	rc := session.NewContext(fs, nil, nil)
	console := display.NewWriter(&bytes.Buffer{})
	return NewShellRunner(model, console, nil, testAgentConfig(), false), rc
}

func TestShellSuccess(t *testing.T) {
	model := &fakeModel{reply: func(llm.Request) (string, error) { return "", nil }}
	runner, rc := newShellFixture(t, model)

	err := runner.Run(context.Background(), rc, ShellRequest{Command: "echo hello"})
	require.NoError(t, err)
	assert.Zero(t, model.callCount())
}

func TestShellUnresolvedCommandFailsWithoutCorrection(t *testing.T) {
	model := &fakeModel{reply: func(llm.Request) (string, error) { return "ls", nil }}
	runner, rc := newShellFixture(t, model)

	err := runner.Run(context.Background(), rc, ShellRequest{Command: "definitely-not-a-real-binary --flag"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in PATH")
	assert.Zero(t, model.callCount(), "unresolved commands must not trigger correction")
}

func TestShellCanFailSwallowsFailure(t *testing.T) {
	model := &fakeModel{reply: func(llm.Request) (string, error) { return "true", nil }}
	runner, rc := newShellFixture(t, model)

	err := runner.Run(context.Background(), rc, ShellRequest{Command: "false", CanFail: true})
	require.NoError(t, err, "tolerated failures are reported as success")
	assert.Zero(t, model.callCount(), "tolerated failures must not trigger correction")
}

func TestShellIdenticalCorrectionFailsWithoutLooping(t *testing.T) {
	model := &fakeModel{reply: func(llm.Request) (string, error) { return "FALSE", nil }}
	runner, rc := newShellFixture(t, model)

	err := runner.Run(context.Background(), rc, ShellRequest{Command: "false"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable correction")
	assert.Equal(t, 1, model.callCount(), "a case-insensitively identical suggestion must not loop")
}

func TestShellCorrectionRetriesAndSucceeds(t *testing.T) {
	model := &fakeModel{reply: func(llm.Request) (string, error) { return "true", nil }}
	runner, rc := newShellFixture(t, model)

	err := runner.Run(context.Background(), rc, ShellRequest{Command: "false"})
	require.NoError(t, err, "accepted correction re-invokes the runner with the new command")
	assert.Equal(t, 1, model.callCount())
}

func TestShellCorrectionBounded(t *testing.T) {
	// The "correction" also fails, so each round asks again until the
	// retry bound stops the recursion.
	model := &fakeModel{reply: func(llm.Request) (string, error) { return "false --again", nil }}
	runner, rc := newShellFixture(t, model)

	err := runner.Run(context.Background(), rc, ShellRequest{Command: "false"})
	require.Error(t, err)
	assert.LessOrEqual(t, model.callCount(), testAgentConfig().MaxCorrectionRetries)
}

func TestShellToleratesAlreadyExists(t *testing.T) {
	model := &fakeModel{reply: func(llm.Request) (string, error) { return "true", nil }}
	runner, rc := newShellFixture(t, model)

	err := runner.Run(context.Background(), rc, ShellRequest{
		Command: "sh -c 'echo already exists >&2; exit 1'",
	})
	require.NoError(t, err)
	assert.Zero(t, model.callCount())
}

func TestShellRunsInRequestedSubdirectory(t *testing.T) {
	model := &fakeModel{reply: func(llm.Request) (string, error) { return "", nil }}
	runner, rc := newShellFixture(t, model)

	err := runner.Run(context.Background(), rc, ShellRequest{
		Command: "touch marker.txt",
		Dir:     "nested/dir",
	})
	require.NoError(t, err)
	assert.True(t, rc.Files().Exists("nested/dir/marker.txt"))
}

func TestShellRejectsEscapingDirectory(t *testing.T) {
	model := &fakeModel{reply: func(llm.Request) (string, error) { return "", nil }}
	runner, rc := newShellFixture(t, model)

	err := runner.Run(context.Background(), rc, ShellRequest{
		Command: "echo hi",
		Dir:     "../outside",
	})
	require.Error(t, err)
}

func TestShellBackgroundImmediateExitFails(t *testing.T) {
	model := &fakeModel{reply: func(llm.Request) (string, error) { return "true", nil }}
	runner, rc := newShellFixture(t, model)

	err := runner.Run(context.Background(), rc, ShellRequest{Command: "false", Background: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited during startup")
	assert.Empty(t, rc.Procs(), "a command that dies within the grace period is never adopted")
	assert.Zero(t, model.callCount(), "background failures must not trigger correction")
}

func TestShellBackgroundSurvivorIsAdopted(t *testing.T) {
	model := &fakeModel{reply: func(llm.Request) (string, error) { return "", nil }}
	runner, rc := newShellFixture(t, model)
	t.Cleanup(func() { _ = rc.Shutdown() })

	err := runner.Run(context.Background(), rc, ShellRequest{Command: "sleep 30", Background: true})
	require.NoError(t, err)

	procs := rc.Procs()
	require.Len(t, procs, 1, "a surviving background command is handed to the session")
	assert.True(t, procs[0].Alive())
	assert.Positive(t, procs[0].PID())
}

func TestCleanCorrection(t *testing.T) {
	assert.Equal(t, "pip install flask", cleanCorrection("```sh\npip install flask\n```"))
	assert.Equal(t, "pip install flask", cleanCorrection("$ pip install flask"))
	assert.Equal(t, "pip install flask", cleanCorrection("`pip install flask`"))
	assert.Equal(t, "", cleanCorrection("   \n  "))
}

func TestIsServerCommand(t *testing.T) {
	assert.True(t, isServerCommand("npm run dev"))
	assert.True(t, isServerCommand("python -m uvicorn app:app"))
	assert.False(t, isServerCommand("npm install"))
}
