// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"strings"
	"time"

	"github.com/knightcli/knight/internal/config"
	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/prompt"
	"github.com/knightcli/knight/internal/session"
	"github.com/knightcli/knight/internal/tools"
)

// HandleAuth manages GitHub credentials: status (default), set, clear.
func HandleAuth(args Args) int {
	console := display.New()

	dir, err := config.Dir()
	if err != nil {
		console.Error("%v", err)
		return 1
	}
	creds, err := session.OpenCredentials(dir)
	if err != nil {
		console.Error("%v", err)
		return 1
	}

	switch args.Subcommand {
	case "", "status":
		return authStatus(args, console, creds)
	case "set":
		return authSet(console, creds, dir)
	case "clear":
		return authClear(console, creds)
	default:
		console.Error("unknown auth subcommand %q", args.Subcommand)
		return 1
	}
}

func authStatus(args Args, console *display.Console, creds *session.Credentials) int {
	cfg, err := loadConfig(args, console)
	if err != nil {
		console.Error("%v", err)
		return 1
	}

	token := cfg.GitHub.Token
	username := cfg.GitHub.Username
	if token == "" {
		token, _ = creds.Get(session.CredGitHubToken)
	}
	if username == "" {
		username, _ = creds.Get(session.CredGitHubUsername)
	}
	if token == "" {
		console.Warn("No GitHub token configured. Run 'knight auth set' or set GITHUB_TOKEN.")
		return 1
	}

	gh := tools.NewGitHub(token, username, "", console)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := gh.CheckAuth(ctx); err != nil {
		console.Error("%v", err)
		return 1
	}
	console.Success("Authenticated as %s.", gh.Username())
	return 0
}

func authSet(console *display.Console, creds *session.Credentials, dir string) int {
	if !display.IsTTY() {
		console.Error("auth set requires a terminal")
		return 1
	}
	prompter := prompt.New(dir)
	defer prompter.Close()

	token, err := prompter.Line("GitHub token: ")
	if err != nil || strings.TrimSpace(token) == "" {
		console.Error("No token entered.")
		return 1
	}
	username, err := prompter.Line("GitHub username (blank to resolve from token): ")
	if err != nil {
		console.Error("%v", err)
		return 1
	}

	if err := creds.Set(session.CredGitHubToken, strings.TrimSpace(token)); err != nil {
		console.Error("%v", err)
		return 1
	}
	if u := strings.TrimSpace(username); u != "" {
		if err := creds.Set(session.CredGitHubUsername, u); err != nil {
			console.Error("%v", err)
			return 1
		}
	}
	console.Success("Credentials stored (encrypted) in %s.", dir)
	return 0
}

func authClear(console *display.Console, creds *session.Credentials) int {
	for _, name := range []string{session.CredGitHubToken, session.CredGitHubUsername} {
		if err := creds.Delete(name); err != nil {
			console.Error("%v", err)
			return 1
		}
	}
	console.Success("Stored GitHub credentials removed.")
	return 0
}
