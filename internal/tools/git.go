// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/session"
)

// =============================================================================
// GIT
// =============================================================================

// Git runs git subcommands in the workspace root.
type Git struct {
	console *display.Console
}

// NewGit wires the git helper.
func NewGit(console *display.Console) *Git {
	return &Git{console: console}
}

// run executes one git subcommand and returns its combined output.
func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		return text, fmt.Errorf("git %s failed: %s", args[0], firstNonEmptyLine(text, err.Error()))
	}
	return text, nil
}

func firstNonEmptyLine(text, fallback string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return strings.TrimSpace(line)
		}
	}
	return fallback
}

// IsRepo reports whether dir is inside a git work tree.
func (g *Git) IsRepo(ctx context.Context, dir string) bool {
	out, err := g.run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// Init creates a repository when one does not exist yet.
func (g *Git) Init(ctx context.Context, dir string) error {
	if g.IsRepo(ctx, dir) {
		return nil
	}
	_, err := g.run(ctx, dir, "init")
	return err
}

// Add stages paths ("." for everything).
func (g *Git) Add(ctx context.Context, dir string, paths ...string) error {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	_, err := g.run(ctx, dir, append([]string{"add"}, paths...)...)
	return err
}

// Commit records staged changes. A clean tree is not an error.
func (g *Git) Commit(ctx context.Context, dir, message string) error {
	status, err := g.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return err
	}
	if status == "" {
		g.console.Warn("No changes to commit.")
		return nil
	}
	_, err = g.run(ctx, dir, "commit", "-m", message)
	if err == nil {
		g.console.Success("Files committed.")
	}
	return err
}

// SetRemote points origin at url, adding or updating as needed.
func (g *Git) SetRemote(ctx context.Context, dir, url string) error {
	if _, err := g.run(ctx, dir, "remote", "add", "origin", url); err != nil {
		_, err = g.run(ctx, dir, "remote", "set-url", "origin", url)
		return err
	}
	return nil
}

// RenameBranch forces the current branch to the given name.
func (g *Git) RenameBranch(ctx context.Context, dir, branch string) error {
	_, err := g.run(ctx, dir, "branch", "-M", branch)
	return err
}

// Push publishes branch to origin.
func (g *Git) Push(ctx context.Context, dir, branch string, setUpstream bool) error {
	args := []string{"push"}
	if setUpstream {
		args = append(args, "-u")
	}
	args = append(args, "origin", branch)
	_, err := g.run(ctx, dir, args...)
	return err
}

// Reconcile pulls origin with unrelated histories allowed, for the case
// where the remote was created with an initial commit.
func (g *Git) Reconcile(ctx context.Context, dir, branch string) error {
	_, err := g.run(ctx, dir, "pull", "origin", branch, "--allow-unrelated-histories", "--no-edit")
	return err
}

// =============================================================================
// COMPOSITE FINALIZER
// =============================================================================

// SetupAndPush performs the whole initial publish sequence: init if
// needed, stage everything, commit, ensure the remote repository
// exists, wire origin, and push (reconciling once on a rejected push).
func (g *Git) SetupAndPush(ctx context.Context, rc *session.Context, gh *GitHub,
	repoName, commitMessage, branch string) error {

	dir := rc.WorkDir()
	g.console.Info("Starting full Git and GitHub setup for %s...", repoName)

	if err := g.Init(ctx, dir); err != nil {
		return err
	}
	if err := g.Add(ctx, dir); err != nil {
		return err
	}
	if err := g.Commit(ctx, dir, commitMessage); err != nil {
		return err
	}

	// A repository already created earlier in the plan is reused
	// without a second API round trip.
	cloneURL := rc.RepoURL()
	if cloneURL == "" {
		var err error
		cloneURL, err = gh.EnsureRepo(ctx, rc, repoName, "", false)
		if err != nil {
			return err
		}
	}
	if err := g.SetRemote(ctx, dir, cloneURL); err != nil {
		return err
	}
	if err := g.RenameBranch(ctx, dir, branch); err != nil {
		return err
	}

	if err := g.Push(ctx, dir, branch, true); err == nil {
		g.console.Success("Successfully pushed project to GitHub!")
		return nil
	}

	g.console.Warn("Initial push failed. Attempting to reconcile and re-push...")
	if err := g.Reconcile(ctx, dir, branch); err != nil {
		return fmt.Errorf("push failed and reconcile did not help: %w", err)
	}
	if err := g.Push(ctx, dir, branch, false); err != nil {
		return fmt.Errorf("all push attempts failed: %w", err)
	}
	g.console.Success("Successfully reconciled and pushed project to GitHub!")
	return nil
}
