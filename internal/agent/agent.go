// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/knightcli/knight/internal/config"
	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/fileio"
	"github.com/knightcli/knight/internal/history"
	"github.com/knightcli/knight/internal/llm"
	"github.com/knightcli/knight/internal/plan"
	"github.com/knightcli/knight/internal/prompt"
	"github.com/knightcli/knight/internal/session"
	"github.com/knightcli/knight/internal/tools"
)

// =============================================================================
// AGENT
// =============================================================================

// Agent owns one session: the model transport, the tool catalog, the
// workspace, and the audit log. Build it once, run any number of goals,
// then Shutdown.
type Agent struct {
	cfg      *config.Config
	console  *display.Console
	prompter *prompt.Prompter
	logger   *slog.Logger

	rc       *session.Context
	model    llm.Client
	registry *tools.Registry
	planner  *plan.Planner
	executor *plan.Executor
	store    *history.Store
	watcher  *session.Watcher

	watchCancel context.CancelFunc
	interactive bool
}

// Options tunes agent construction beyond the configuration file.
type Options struct {
	// Console defaults to stdout.
	Console *display.Console
	// Prompter may be nil; that forces non-interactive execution.
	Prompter *prompt.Prompter
	// Interactive gates plan confirmation and per-step dispositions.
	Interactive bool
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New builds an agent from configuration. The returned agent holds a
// file watcher goroutine and an open history database; callers must
// Shutdown when done.
func New(cfg *config.Config, opts Options) (*Agent, error) {
	console := opts.Console
	if console == nil {
		console = display.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workDir := cfg.Workspace.Dir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		workDir = wd
	}
	fs, err := fileio.New(workDir, cfg.Workspace.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}

	confDir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	creds, err := session.OpenCredentials(confDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	rc := session.NewContext(fs, creds, logger)

	mc, ok := cfg.Models[cfg.DefaultModel]
	if !ok {
		return nil, fmt.Errorf("default_model %q is not defined in [models]", cfg.DefaultModel)
	}
	model, err := llm.New(mc)
	if err != nil {
		return nil, err
	}

	store, err := history.Open(filepath.Join(confDir, "history.db"))
	if err != nil {
		return nil, err
	}

	interactive := opts.Interactive && opts.Prompter != nil

	registry := tools.NewRegistry()
	gh := resolveGitHub(cfg, rc, console)
	deps := tools.Deps{
		Model:       model,
		Console:     console,
		Prompter:    opts.Prompter,
		Agent:       cfg.Agent,
		GitHub:      gh,
		Interactive: interactive,
	}
	if err := tools.RegisterBuiltins(registry, deps); err != nil {
		store.Close()
		return nil, err
	}

	executor := plan.NewExecutor(registry, model, console, prompterOrNil(opts.Prompter), interactive).
		WithRecorder(store)
	if gh != nil {
		executor = executor.WithGitHub(gh)
	}

	a := &Agent{
		cfg:         cfg,
		console:     console,
		prompter:    opts.Prompter,
		logger:      logger,
		rc:          rc,
		model:       model,
		registry:    registry,
		planner:     plan.NewPlanner(model, registry, console, cfg.Agent.MaxPlanSteps),
		executor:    executor,
		store:       store,
		interactive: interactive,
	}

	if err := a.startWatcher(); err != nil {
		logger.Warn("file watcher unavailable", "error", err)
	}
	return a, nil
}

// prompterOrNil avoids a typed-nil interface value when no prompter is
// configured.
func prompterOrNil(p *prompt.Prompter) plan.Prompter {
	if p == nil {
		return nil
	}
	return p
}

// resolveGitHub builds the hosting-platform client if a token is
// available, from configuration first, then the encrypted store.
func resolveGitHub(cfg *config.Config, rc *session.Context, console *display.Console) *tools.GitHub {
	token := cfg.GitHub.Token
	username := cfg.GitHub.Username
	if creds := rc.Credentials(); creds != nil {
		if token == "" {
			if v, err := creds.Get(session.CredGitHubToken); err == nil {
				token = v
			}
		}
		if username == "" {
			if v, err := creds.Get(session.CredGitHubUsername); err == nil {
				username = v
			}
		}
	}
	if token == "" {
		return nil
	}
	return tools.NewGitHub(token, username, "", console)
}

func (a *Agent) startWatcher() error {
	watcher, err := session.NewWatcher(a.rc)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.watcher = watcher
	a.watchCancel = cancel
	go watcher.Run(ctx)
	return nil
}

// =============================================================================
// RUN LOOP
// =============================================================================

// Run plans and executes a single goal.
func (a *Agent) Run(ctx context.Context, goal string) (plan.Outcome, error) {
	p, err := a.planner.Generate(ctx, goal, a.rc.FileContext())
	if err != nil {
		return plan.OutcomeFailed, err
	}

	a.console.Rule("Plan")
	a.console.JSON(p.JSON())

	outcome, err := a.executor.Execute(ctx, a.rc, p)
	if err != nil {
		return outcome, err
	}
	if n := len(a.rc.Procs()); n > 0 {
		a.console.Dim("%d background process(es) still running; stopped on exit.", n)
	}
	return outcome, nil
}

// Registry exposes the tool catalog, for the tools listing command.
func (a *Agent) Registry() *tools.Registry {
	return a.registry
}

// History exposes the audit store, for the history listing command.
func (a *Agent) History() *history.Store {
	return a.store
}

// Session exposes the runtime context.
func (a *Agent) Session() *session.Context {
	return a.rc
}

// Shutdown stops the watcher, terminates adopted background processes,
// and closes the audit store.
func (a *Agent) Shutdown() error {
	var errs []error
	if a.watchCancel != nil {
		a.watchCancel()
	}
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.rc.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
