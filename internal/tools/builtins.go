// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/knightcli/knight/internal/config"
	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/llm"
	"github.com/knightcli/knight/internal/prompt"
)

// Deps carries the collaborators the built-in tools need.
type Deps struct {
	Model       llm.Client
	Console     *display.Console
	Prompter    *prompt.Prompter // nil in non-interactive mode
	Agent       config.AgentConfig
	GitHub      *GitHub
	Web         *Web
	Interactive bool
}

// RegisterBuiltins populates the registry with the standard catalog.
// Called once at startup.
func RegisterBuiltins(reg *Registry, deps Deps) error {
	shell := NewShellRunner(deps.Model, deps.Console, deps.Prompter, deps.Agent, deps.Interactive)
	codegen := NewCodeGenerator(deps.Model, deps.Console, deps.Agent.GenerateConcurrency)
	git := NewGit(deps.Console)
	web := deps.Web
	if web == nil {
		web = NewWeb("", deps.Console)
	}

	descriptors := []*Descriptor{
		{
			Name:        "run_shell_command",
			Description: "Executes a shell command. Use for project setup, dependency installation, and running servers.",
			Params: []Param{
				{Name: "command", Hint: "string"},
				{Name: "cwd", Hint: "string (optional)"},
				{Name: "can_fail", Hint: "boolean (optional)"},
				{Name: "passthrough", Hint: "boolean (optional)"},
				{Name: "background", Hint: "boolean (optional)"},
			},
			Run: func(ctx context.Context, inv Invocation) error {
				command := ArgString(inv.Args, "command")
				if command == "" {
					return fmt.Errorf("run_shell_command requires a command")
				}
				return shell.Run(ctx, inv.Session, ShellRequest{
					Command:     command,
					Dir:         ArgString(inv.Args, "cwd"),
					CanFail:     ArgBool(inv.Args, "can_fail"),
					Passthrough: ArgBool(inv.Args, "passthrough"),
					Background:  ArgBool(inv.Args, "background"),
				})
			},
		},
		{
			Name:        "generate_code_concurrently",
			Description: "Generates code for multiple files in parallel. The most efficient way to build a project.",
			Params: []Param{
				{Name: "files", Hint: "list of objects, each with 'filename' and 'prompt'"},
				{Name: "base_dir", Hint: "string (optional)"},
			},
			Run: func(ctx context.Context, inv Invocation) error {
				specs, err := parseFileSpecs(inv.Args["files"])
				if err != nil {
					return err
				}
				return codegen.Generate(ctx, inv.Session, specs, ArgString(inv.Args, "base_dir"))
			},
		},
		{
			Name:        "generate_code_for_file",
			Description: "Generates code for a single file from a prompt and writes it to the workspace.",
			Params: []Param{
				{Name: "filename", Hint: "string"},
				{Name: "prompt", Hint: "string"},
				{Name: "base_dir", Hint: "string (optional)"},
			},
			Run: func(ctx context.Context, inv Invocation) error {
				return codegen.GenerateOne(ctx, inv.Session, FileSpec{
					Filename: ArgString(inv.Args, "filename"),
					Prompt:   ArgString(inv.Args, "prompt"),
				}, ArgString(inv.Args, "base_dir"))
			},
		},
		{
			Name:        "create_file",
			Description: "Writes literal content to a file in the workspace, creating parent directories.",
			Params: []Param{
				{Name: "filename", Hint: "string"},
				{Name: "content", Hint: "string"},
			},
			Run: func(ctx context.Context, inv Invocation) error {
				filename := ArgString(inv.Args, "filename")
				if filename == "" {
					return fmt.Errorf("create_file requires a filename")
				}
				content := ArgString(inv.Args, "content")
				if err := inv.Session.Files().Write(filename, content); err != nil {
					return err
				}
				inv.Session.RememberFile(filename, content)
				deps.Console.Success("Wrote %s", filename)
				return nil
			},
		},
		{
			Name:        "list_files",
			Description: "Lists the files in a workspace directory.",
			Params: []Param{
				{Name: "path", Hint: "string (optional, defaults to the project root)"},
			},
			Run: func(ctx context.Context, inv Invocation) error {
				names, err := inv.Session.Files().List(ArgString(inv.Args, "path"))
				if err != nil {
					return err
				}
				if len(names) == 0 {
					deps.Console.Dim("(empty)")
					return nil
				}
				deps.Console.Info("%s", strings.Join(names, "\n"))
				return nil
			},
		},
		{
			Name:        "setup_git_and_push",
			Description: "The primary tool for finalizing a project. It handles staging ALL files, committing, creating the GitHub repo, and pushing the initial commit.",
			Params: []Param{
				{Name: "commit_message", Hint: "string"},
				{Name: "repo_name", Hint: "string"},
				{Name: "branch", Hint: "string (optional, defaults to 'main')"},
			},
			Run: func(ctx context.Context, inv Invocation) error {
				if deps.GitHub == nil {
					return fmt.Errorf("no GitHub credentials configured; run 'knight auth set' or set GITHUB_TOKEN")
				}
				repoName := ArgString(inv.Args, "repo_name")
				if repoName == "" {
					return fmt.Errorf("setup_git_and_push requires a repo_name")
				}
				branch := ArgString(inv.Args, "branch")
				if branch == "" {
					branch = "main"
				}
				message := ArgString(inv.Args, "commit_message")
				if message == "" {
					message = "Initial commit"
				}
				return git.SetupAndPush(ctx, inv.Session, deps.GitHub, repoName, message, branch)
			},
		},
		{
			Name:        "git_init",
			Description: "Initializes a git repository in the workspace if one does not exist.",
			Params:      nil,
			Run: func(ctx context.Context, inv Invocation) error {
				return git.Init(ctx, inv.Session.WorkDir())
			},
		},
		{
			Name:        "git_add",
			Description: "Stages files for commit ('.' stages everything).",
			Params: []Param{
				{Name: "paths", Hint: "string (optional, defaults to '.')"},
			},
			Run: func(ctx context.Context, inv Invocation) error {
				paths := strings.Fields(ArgString(inv.Args, "paths"))
				return git.Add(ctx, inv.Session.WorkDir(), paths...)
			},
		},
		{
			Name:        "git_commit",
			Description: "Commits staged changes with a message.",
			Params: []Param{
				{Name: "message", Hint: "string"},
			},
			Run: func(ctx context.Context, inv Invocation) error {
				message := ArgString(inv.Args, "message")
				if message == "" {
					return fmt.Errorf("git_commit requires a message")
				}
				return git.Commit(ctx, inv.Session.WorkDir(), message)
			},
		},
		{
			Name:        "git_push",
			Description: "Pushes the current branch to origin.",
			Params: []Param{
				{Name: "branch", Hint: "string (optional, defaults to 'main')"},
			},
			Run: func(ctx context.Context, inv Invocation) error {
				branch := ArgString(inv.Args, "branch")
				if branch == "" {
					branch = "main"
				}
				return git.Push(ctx, inv.Session.WorkDir(), branch, true)
			},
		},
		{
			Name:        "github_create_repo",
			Description: "Ensures a GitHub repository exists. Creates it if it's missing, otherwise uses the existing one.",
			Params: []Param{
				{Name: "repo_name", Hint: "string"},
				{Name: "description", Hint: "string (optional)"},
				{Name: "is_private", Hint: "boolean (optional)"},
			},
			Run: func(ctx context.Context, inv Invocation) error {
				if deps.GitHub == nil {
					return fmt.Errorf("no GitHub credentials configured; run 'knight auth set' or set GITHUB_TOKEN")
				}
				repoName := ArgString(inv.Args, "repo_name")
				if repoName == "" {
					return fmt.Errorf("github_create_repo requires a repo_name")
				}
				_, err := deps.GitHub.EnsureRepo(ctx, inv.Session, repoName,
					ArgString(inv.Args, "description"), ArgBool(inv.Args, "is_private"))
				return err
			},
		},
		{
			Name:        "web_search",
			Description: "Performs a web search to find information, documentation, or library versions.",
			Params: []Param{
				{Name: "query", Hint: "string"},
			},
			Run: func(ctx context.Context, inv Invocation) error {
				query := ArgString(inv.Args, "query")
				results, err := web.Search(ctx, query, 5)
				if err != nil {
					return err
				}
				deps.Console.Info("%s", results)
				inv.Session.RememberFile("web_search: "+query, results)
				return nil
			},
		},
		{
			Name:        "fetch_web_content",
			Description: "Reads the text content of a URL. Use after `web_search` to 'read' a link.",
			Params: []Param{
				{Name: "url", Hint: "string"},
			},
			Run: func(ctx context.Context, inv Invocation) error {
				pageURL := ArgString(inv.Args, "url")
				text, err := web.Fetch(ctx, pageURL)
				if err != nil {
					return err
				}
				inv.Session.RememberFile("web: "+pageURL, text)
				deps.Console.Success("Fetched %d characters from %s", len(text), pageURL)
				return nil
			},
		},
	}

	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// parseFileSpecs converts the model-supplied files argument into specs.
func parseFileSpecs(raw any) ([]FileSpec, error) {
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("generate_code_concurrently requires a non-empty 'files' list")
	}
	specs := make([]FileSpec, 0, len(items))
	for i, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("files[%d] is not an object", i)
		}
		spec := FileSpec{
			Filename: ArgString(entry, "filename"),
			Prompt:   ArgString(entry, "prompt"),
		}
		if spec.Filename == "" || spec.Prompt == "" {
			return nil, fmt.Errorf("files[%d] needs both 'filename' and 'prompt'", i)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
