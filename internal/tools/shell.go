// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/knightcli/knight/internal/config"
	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/llm"
	"github.com/knightcli/knight/internal/prompt"
	"github.com/knightcli/knight/internal/session"
	"github.com/knightcli/knight/internal/util"
)

// ErrAborted signals that the user cancelled during a correction offer.
var ErrAborted = errors.New("aborted by user")

// serverKeywords mark commands that start long-running servers; such
// commands are detached into the background instead of awaited.
var serverKeywords = []string{
	"uvicorn", "npm start", "npm run dev", "yarn start", "yarn dev",
	"flask run", "serve", "next dev", "vite", "runserver",
}

// tolerated stderr phrases: the step tried to create something that is
// already in the desired state.
var toleratedStderr = []string{
	"already exists",
	"already up to date",
}

// =============================================================================
// SHELL RUNNER
// =============================================================================

// ShellRequest is one shell invocation.
type ShellRequest struct {
	Command     string
	Dir         string // relative to the workspace root; empty means the root
	CanFail     bool
	Passthrough bool
	Background  bool
}

// ShellRunner executes host commands for plan steps: captured with a
// live status line by default, passthrough for interactive commands,
// detached for servers. Failed captured commands get one bounded round
// of model self-correction.
type ShellRunner struct {
	model       llm.Client
	console     *display.Console
	prompter    *prompt.Prompter // nil in non-interactive mode
	agent       config.AgentConfig
	interactive bool
}

// NewShellRunner wires a runner. prompter may be nil, in which case
// suggested corrections are applied without asking.
func NewShellRunner(model llm.Client, console *display.Console, prompter *prompt.Prompter,
	agent config.AgentConfig, interactive bool) *ShellRunner {
	return &ShellRunner{
		model:       model,
		console:     console,
		prompter:    prompter,
		agent:       agent,
		interactive: interactive,
	}
}

// Run executes the request, self-correcting up to the configured retry
// bound. A nil return means the step may proceed.
func (r *ShellRunner) Run(ctx context.Context, rc *session.Context, req ShellRequest) error {
	return r.run(ctx, rc, req, 0)
}

func (r *ShellRunner) run(ctx context.Context, rc *session.Context, req ShellRequest, attempt int) error {
	// Commands copied out of model output can carry odd Unicode forms;
	// normalize before touching the shell.
	command := norm.NFKC.String(strings.TrimSpace(req.Command))
	if command == "" {
		return fmt.Errorf("shell command must not be empty")
	}

	// Resolve the executable up front. An unknown binary will not be
	// fixed by rephrasing the command, so no correction is attempted.
	token := firstToken(command)
	if _, err := exec.LookPath(token); err != nil {
		return fmt.Errorf("command %q not found in PATH", token)
	}

	runDir, err := r.resolveDir(rc, req.Dir)
	if err != nil {
		return err
	}

	background := req.Background
	if !background && isServerCommand(command) {
		background = true
		r.console.Warn("Detected server command. Running in background mode.")
	}

	r.console.Command(command, rc.Files().Rel(runDir))

	switch {
	case background:
		return r.runBackground(ctx, rc, command, runDir)
	case req.Passthrough:
		return r.runPassthrough(ctx, command, runDir, req.CanFail)
	default:
		return r.runCaptured(ctx, rc, req, command, runDir, attempt)
	}
}

// resolveDir maps the requested subdirectory into the workspace,
// creating it when missing.
func (r *ShellRunner) resolveDir(rc *session.Context, dir string) (string, error) {
	if dir == "" || dir == "." {
		return rc.WorkDir(), nil
	}
	abs, err := rc.Files().Resolve(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("cannot create directory %s: %w", dir, err)
	}
	return abs, nil
}

func isServerCommand(command string) bool {
	lower := strings.ToLower(command)
	for _, kw := range serverKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func firstToken(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return command
	}
	return fields[0]
}

// =============================================================================
// BACKGROUND MODE
// =============================================================================

// runBackground starts the command detached. A short grace period
// distinguishes "failed immediately" from "still running"; survivors
// are adopted by the session for shutdown.
func (r *ShellRunner) runBackground(ctx context.Context, rc *session.Context, command, dir string) error {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir
	session.SetProcGroup(cmd)

	ring := util.NewLineRing(r.agent.CaptureLines)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("cannot attach to command output: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("cannot attach to command output: %w", err)
	}
	go drainLines(stdout, ring)
	go drainLines(stderr, ring)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cannot start %q: %w", command, err)
	}

	proc := session.NewProc(cmd, command)
	grace := time.Duration(r.agent.BackgroundGraceSeconds) * time.Second
	if proc.WaitExit(grace) {
		r.console.Error("Background command exited immediately.")
		r.console.Digest(ring.Tail(r.agent.DigestLines))
		return fmt.Errorf("background command %q exited during startup", command)
	}

	rc.AdoptProc(proc)
	r.console.Success("Command started in background (PID: %d).", proc.PID())
	return nil
}

// =============================================================================
// PASSTHROUGH MODE
// =============================================================================

// runPassthrough hands the real terminal to the child, for commands
// that prompt the user themselves. The result is purely the exit
// status; no output is captured, so no correction is attempted.
func (r *ShellRunner) runPassthrough(ctx context.Context, command, dir string, canFail bool) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if canFail {
			r.console.Warn("Command failed but was marked as non-critical. Continuing.")
			return nil
		}
		return fmt.Errorf("command %q failed: %w", command, err)
	}
	r.console.Success("Shell command finished successfully.")
	return nil
}

// =============================================================================
// CAPTURED MODE
// =============================================================================

func (r *ShellRunner) runCaptured(ctx context.Context, rc *session.Context, req ShellRequest,
	command, dir string, attempt int) error {

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	ring := util.NewLineRing(r.agent.CaptureLines)
	stderrRing := util.NewLineRing(r.agent.CaptureLines)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("cannot attach to command output: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("cannot attach to command output: %w", err)
	}

	stdoutDone := make(chan struct{})
	stderrDone := make(chan struct{})
	go func() { drainLines(stdout, ring); close(stdoutDone) }()
	go func() { drainBoth(stderr, ring, stderrRing); close(stderrDone) }()

	status := display.StartStatus("Executing")
	if err := cmd.Start(); err != nil {
		status.Stop()
		return fmt.Errorf("cannot start %q: %w", command, err)
	}
	<-stdoutDone
	<-stderrDone
	waitErr := cmd.Wait()
	status.Stop()

	if waitErr == nil {
		r.console.Success("Shell command finished successfully.")
		r.console.Digest(ring.Tail(r.agent.DigestLines))
		return nil
	}

	stderrText := strings.ToLower(strings.Join(stderrRing.Lines(), "\n"))
	for _, phrase := range toleratedStderr {
		if strings.Contains(stderrText, phrase) {
			r.console.Warn("Resource already exists or is up to date. Continuing.")
			return nil
		}
	}

	r.console.Error("Shell command failed.")
	r.console.Digest(ring.Tail(r.agent.DigestLines))

	if req.CanFail {
		r.console.Warn("Command failed but was marked as non-critical. Continuing.")
		return nil
	}

	return r.correct(ctx, rc, req, command, ring.Tail(r.agent.DigestLines), attempt)
}

// drainLines appends each line of r to the ring.
func drainLines(r io.Reader, ring *util.LineRing) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		ring.Append(scanner.Text())
	}
}

// drainBoth appends each line to two rings (combined digest + stderr
// tolerance check).
func drainBoth(r io.Reader, a, b *util.LineRing) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		a.Append(scanner.Text())
		b.Append(scanner.Text())
	}
}

// =============================================================================
// SELF-CORRECTION
// =============================================================================

// correct asks the model for a fixed command once per failure, bounded
// by the configured retry limit. The suggestion must differ from the
// original; the user may accept, edit, or abort.
func (r *ShellRunner) correct(ctx context.Context, rc *session.Context, req ShellRequest,
	command string, tail []string, attempt int) error {

	if attempt >= r.agent.MaxCorrectionRetries {
		return fmt.Errorf("command %q failed after %d correction attempts", command, attempt)
	}

	status := display.StartStatus("Asking the model for a corrected command")
	reply, err := llm.Collect(ctx, r.model, llm.Request{
		System: "You fix failing shell commands. Respond with ONLY the corrected command on a single line, no explanation, no code fences.",
		Prompt: fmt.Sprintf("This command failed:\n\n    %s\n\nError output:\n%s\n\nProvide the corrected command.",
			command, strings.Join(tail, "\n")),
	})
	status.Stop()
	if err != nil {
		return fmt.Errorf("command %q failed and no correction could be produced: %w", command, err)
	}

	suggestion := cleanCorrection(reply)
	if suggestion == "" || strings.EqualFold(suggestion, command) {
		return fmt.Errorf("command %q failed and the model offered no usable correction", command)
	}

	corrected := suggestion
	if r.interactive && r.prompter != nil {
		r.console.Info("Suggested fix: %s", suggestion)
		choice, err := r.prompter.Choose("Apply the suggested command?", []prompt.Choice{
			{Key: "a", Label: "ccept"},
			{Key: "e", Label: "dit"},
			{Key: "q", Label: "uit"},
		})
		if err != nil {
			return ErrAborted
		}
		switch choice {
		case "a":
		case "e":
			edited, err := r.prompter.LineWithSuggestion("command> ", suggestion)
			if err != nil {
				return ErrAborted
			}
			corrected = strings.TrimSpace(edited)
			if corrected == "" {
				return ErrAborted
			}
		case "q":
			return ErrAborted
		}
	} else {
		r.console.Warn("Applying suggested correction: %s", suggestion)
	}

	retry := req
	retry.Command = corrected
	return r.run(ctx, rc, retry, attempt+1)
}

// cleanCorrection reduces a model reply to a single command line.
func cleanCorrection(reply string) string {
	reply = StripFences(strings.TrimSpace(reply))
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "$ ")
		line = strings.Trim(line, "`")
		if line != "" {
			return line
		}
	}
	return ""
}
