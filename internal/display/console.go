// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package display

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"

	"github.com/knightcli/knight/internal/util"
)

// Console is the line-oriented display collaborator. All engine output
// flows through it so callers (and tests) can redirect or silence it.
type Console struct {
	out   io.Writer
	width int
}

// New returns a Console writing to stdout at the detected width.
func New() *Console {
	return &Console{out: os.Stdout, width: Width()}
}

// NewWriter returns a Console writing to w. Used by tests.
func NewWriter(w io.Writer) *Console {
	return &Console{out: w, width: DefaultTerminalWidth}
}

// Printf writes unstyled output.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// Stream returns a StreamEcho bound to this console's writer.
func (c *Console) Stream() *StreamEcho {
	return &StreamEcho{out: c.out}
}

// Info writes a plain informational line.
func (c *Console) Info(format string, args ...any) {
	fmt.Fprintln(c.out, fmt.Sprintf(format, args...))
}

// Success writes a green check line.
func (c *Console) Success(format string, args ...any) {
	fmt.Fprintln(c.out, SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warn writes an amber warning line.
func (c *Console) Warn(format string, args ...any) {
	fmt.Fprintln(c.out, WarnStyle.Render("! "+fmt.Sprintf(format, args...)))
}

// Error writes a rose failure line.
func (c *Console) Error(format string, args ...any) {
	fmt.Fprintln(c.out, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Dim writes secondary detail.
func (c *Console) Dim(format string, args ...any) {
	fmt.Fprintln(c.out, DimStyle.Render(fmt.Sprintf(format, args...)))
}

// Title writes the agent banner line.
func (c *Console) Title(text string) {
	fmt.Fprintln(c.out, TitleStyle.Render(text))
}

// Rule writes a horizontal rule with an embedded title, used as a
// per-step header.
func (c *Console) Rule(title string) {
	label := StepStyle.Render(title)
	pad := c.width - len(title) - 4
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(c.out, "%s %s %s\n",
		RuleStyle.Render("──"), label, RuleStyle.Render(strings.Repeat("─", pad)))
}

// Reasoning writes the model's reasoning for a step.
func (c *Console) Reasoning(text string) {
	fmt.Fprintln(c.out, ReasoningStyle.Render("reasoning: "+text))
}

// Command announces a shell command and its working directory.
func (c *Console) Command(command, dir string) {
	fmt.Fprintf(c.out, "Running %s %s\n",
		CommandStyle.Render(util.TruncateWidth(command, c.width-12)),
		DimStyle.Render("in "+dir))
}

// Digest surfaces the trailing lines of captured output.
func (c *Console) Digest(lines []string) {
	for _, line := range lines {
		fmt.Fprintln(c.out, DimStyle.Render("  │ "+util.TruncateWidth(line, c.width-6)))
	}
}

// JSON writes syntax-highlighted JSON. Falls back to the raw text when
// highlighting fails or color is disabled.
func (c *Console) JSON(src string) {
	if !ColorEnabled() {
		fmt.Fprintln(c.out, src)
		return
	}
	var buf bytes.Buffer
	if err := quick.Highlight(&buf, src, "json", "terminal256", "monokai"); err != nil {
		fmt.Fprintln(c.out, src)
		return
	}
	fmt.Fprintln(c.out, buf.String())
}

// Markdown renders a markdown document for the terminal. Falls back to
// the raw text when rendering fails.
func (c *Console) Markdown(src string) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(c.width),
	)
	if err != nil {
		fmt.Fprintln(c.out, src)
		return
	}
	out, err := r.Render(src)
	if err != nil {
		fmt.Fprintln(c.out, src)
		return
	}
	fmt.Fprint(c.out, out)
}
