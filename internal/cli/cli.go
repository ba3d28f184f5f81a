// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command routing for knight.
package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdRun Command = iota
	CmdTools
	CmdHistory
	CmdConfig
	CmdAuth
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Yes        bool   // -y / --yes: skip confirmations, non-interactive
	Model      string // --model: override default_model for this run
	Workdir    string // --workdir: override workspace.dir for this run
	ConfigPath string // --config: explicit configuration file

	// Command-specific
	Goal       string   // run: the free-text goal
	Subcommand string   // first positional after the command word
	Raw        []string // remaining positionals
}

const usageText = `knight - goal-driven AI build agent

Knight turns a free-text goal into a reviewed, step-by-step tool plan
and executes it in your workspace.

Usage:
  knight "goal"              Plan and execute a goal
  knight run "goal"          Same, explicit
  knight tools               List the tool catalog
  knight history [run-id]    Show recent runs, or one run's steps
  knight config [show|init]  Configuration
  knight auth [status|set]   GitHub credentials
  knight version             Show version
  knight help                Show this help

Flags:
  -y, --yes          Execute without confirmations (non-interactive)
      --model NAME   Use a different [models] entry for this run
      --workdir DIR  Constrain file operations to DIR
      --config PATH  Load configuration from PATH

Environment:
  KNIGHT_MODEL, KNIGHT_WORKDIR, KNIGHT_LOG_LEVEL, GITHUB_TOKEN,
  GITHUB_USERNAME, OLLAMA_HOST
`

// Parse interprets os.Args into a command and its arguments.
func Parse() (Command, Args) {
	return parse(os.Args[1:])
}

func parse(raw []string) (Command, Args) {
	var args Args
	var positional []string

	i := 0
	for i < len(raw) {
		arg := raw[i]
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			i++
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		switch name {
		case "y", "yes":
			args.Yes = true
			i++
		case "model", "workdir", "config":
			if !hasValue {
				if i+1 >= len(raw) {
					i++
					continue
				}
				value = raw[i+1]
				i += 2
			} else {
				i++
			}
			switch name {
			case "model":
				args.Model = value
			case "workdir":
				args.Workdir = value
			case "config":
				args.ConfigPath = value
			}
		case "h", "help":
			return CmdHelp, args
		case "v", "version":
			return CmdVersion, args
		default:
			// Unknown flags are ignored rather than fatal.
			i++
		}
	}

	if len(positional) == 0 {
		return CmdHelp, args
	}

	switch positional[0] {
	case "run":
		args.Goal = strings.Join(positional[1:], " ")
		if args.Goal == "" {
			return CmdHelp, args
		}
		return CmdRun, args
	case "tools":
		return CmdTools, args
	case "history":
		if len(positional) > 1 {
			args.Subcommand = positional[1]
		}
		return CmdHistory, args
	case "config":
		if len(positional) > 1 {
			args.Subcommand = positional[1]
		}
		args.Raw = positional[2:]
		return CmdConfig, args
	case "auth":
		if len(positional) > 1 {
			args.Subcommand = positional[1]
		}
		return CmdAuth, args
	case "version":
		return CmdVersion, args
	case "help":
		return CmdHelp, args
	default:
		// Bare goal: knight "build me a flask app"
		args.Goal = strings.Join(positional, " ")
		return CmdRun, args
	}
}

// HandleHelp prints usage.
func HandleHelp() {
	fmt.Print(usageText)
}

// HandleVersion prints build information.
func HandleVersion() {
	fmt.Printf("knight %s (%s, built %s)\n", Version, GitCommit, BuildDate)
}
