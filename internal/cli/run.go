// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/knightcli/knight/internal/agent"
	"github.com/knightcli/knight/internal/config"
	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/plan"
	"github.com/knightcli/knight/internal/prompt"
)

// HandleRun plans and executes one goal. Returns the process exit code.
func HandleRun(args Args) int {
	console := display.New()

	cfg, err := loadConfig(args, console)
	if err != nil {
		console.Error("%v", err)
		return 1
	}
	logger := setupLogger(cfg.LogLevel)

	interactive := !args.Yes && display.IsTTY()
	var prompter *prompt.Prompter
	if interactive {
		dir, err := config.Dir()
		if err != nil {
			console.Error("%v", err)
			return 1
		}
		prompter = prompt.New(dir)
		defer prompter.Close()
	}

	a, err := agent.New(cfg, agent.Options{
		Console:     console,
		Prompter:    prompter,
		Interactive: interactive,
		Logger:      logger,
	})
	if err != nil {
		console.Error("%v", err)
		return 1
	}
	defer func() {
		if err := a.Shutdown(); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := a.Run(ctx, args.Goal)
	switch outcome {
	case plan.OutcomeFailed:
		if err != nil {
			console.Error("%v", err)
		}
		return 1
	case plan.OutcomeAborted:
		return 0
	default:
		return 0
	}
}

// loadConfig loads the configuration, scaffolding the default file on
// first run, and applies environment and flag overrides.
func loadConfig(args Args, console *display.Console) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		scaffoldConfig(console)
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if args.Model != "" {
		if _, ok := cfg.Models[args.Model]; !ok {
			return nil, fmt.Errorf("--model %q is not defined in [models]", args.Model)
		}
		cfg.DefaultModel = args.Model
	}
	if args.Workdir != "" {
		cfg.Workspace.Dir = args.Workdir
	}
	return cfg, nil
}

// scaffoldConfig writes the default configuration file on first run so
// users have something to edit.
func scaffoldConfig(console *display.Console) {
	path, err := config.Path()
	if err != nil {
		return
	}
	if _, err := os.Stat(path); err == nil {
		return
	}
	if err := config.Save(config.Default()); err != nil {
		return
	}
	console.Dim("Wrote default configuration to %s", path)
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
