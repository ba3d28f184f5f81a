// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/llm"
	"github.com/knightcli/knight/internal/session"
)

// =============================================================================
// CODE GENERATOR
// =============================================================================

// FileSpec names one file to generate and the prompt describing it.
type FileSpec struct {
	Filename string
	Prompt   string
}

// CodeGenerator fans out per-file model calls. Every task runs to
// completion regardless of sibling failures; the overall result is the
// AND of the per-file outcomes.
type CodeGenerator struct {
	model       llm.Client
	console     *display.Console
	concurrency int
}

// NewCodeGenerator wires a generator with a concurrency cap.
func NewCodeGenerator(model llm.Client, console *display.Console, concurrency int) *CodeGenerator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &CodeGenerator{model: model, console: console, concurrency: concurrency}
}

// Generate writes every requested file under baseDir (relative to the
// workspace root). All tasks are awaited before returning; a failing
// file neither cancels nor rolls back its siblings.
func (g *CodeGenerator) Generate(ctx context.Context, rc *session.Context, specs []FileSpec, baseDir string) error {
	if len(specs) == 0 {
		return fmt.Errorf("no files to generate")
	}

	results := make([]error, len(specs))
	var group errgroup.Group
	group.SetLimit(g.concurrency)

	status := display.StartStatus(fmt.Sprintf("Generating %d files", len(specs)))
	var finished atomic.Int32
	for i, spec := range specs {
		group.Go(func() error {
			// Failures are recorded per file, never returned, so a bad
			// file cannot cancel the rest of the group.
			results[i] = g.generateOne(ctx, rc, spec, baseDir)
			status.SetLabel(fmt.Sprintf("Generating %d files (%d finished)", len(specs), finished.Add(1)))
			return nil
		})
	}
	_ = group.Wait()
	status.Stop()

	failed := 0
	for i, err := range results {
		if err != nil {
			failed++
			g.console.Error("FAILED %s: %v", specs[i].Filename, err)
		} else {
			g.console.Success("Wrote %s", specs[i].Filename)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to generate", failed, len(specs))
	}
	g.console.Dim("Generated %d files in %.1fs.", len(specs), status.Elapsed().Seconds())
	return nil
}

// GenerateOne is the single-file variant exposed as its own tool.
func (g *CodeGenerator) GenerateOne(ctx context.Context, rc *session.Context, spec FileSpec, baseDir string) error {
	if err := g.generateOne(ctx, rc, spec, baseDir); err != nil {
		g.console.Error("FAILED %s: %v", spec.Filename, err)
		return err
	}
	g.console.Success("Wrote %s", spec.Filename)
	return nil
}

func (g *CodeGenerator) generateOne(ctx context.Context, rc *session.Context, spec FileSpec, baseDir string) error {
	if spec.Filename == "" {
		return fmt.Errorf("file spec has no filename")
	}
	if spec.Prompt == "" {
		return fmt.Errorf("file spec has no prompt")
	}

	code, err := llm.Collect(ctx, g.model, llm.Request{
		System: generationSystemPrompt,
		Prompt: fmt.Sprintf("**File to create:** `%s`\n**Code to generate based on this prompt:** %s",
			spec.Filename, spec.Prompt),
	})
	if err != nil {
		return err
	}

	code = StripFences(strings.TrimSpace(code))
	if code == "" {
		return fmt.Errorf("model returned no content")
	}

	path := filepath.Join(baseDir, spec.Filename)
	if err := rc.Files().Write(path, code+"\n"); err != nil {
		return err
	}
	rc.RememberFile(path, code)
	return nil
}

// generationSystemPrompt instructs the model to emit raw file content.
const generationSystemPrompt = "You are a code-writing AI. Your only task is to generate the raw code for a single file based on the user's request. " +
	"Your output must be ONLY the code itself.\n\n" +
	"CRITICAL INSTRUCTIONS:\n" +
	"- DO NOT include any explanations, introductory text, or summaries.\n" +
	"- DO NOT wrap the code in markdown code blocks like ```python.\n" +
	"- DO NOT include the command to run the file."

// =============================================================================
// FENCE STRIPPING
// =============================================================================

// StripFences removes a surrounding markdown code fence if the model
// emitted one despite instructions. Content without fences is returned
// unchanged.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return s
	}
	// Drop the opening fence (with any language tag).
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
