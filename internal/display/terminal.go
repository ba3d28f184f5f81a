// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package display

import (
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal. Interactive prompts are only
// possible when this holds.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// =============================================================================
// TERMINAL WIDTH
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback when detection fails.
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the narrowest width used for wrapping.
	MinTerminalWidth = 40
)

// Width returns the current terminal width, clamped to MinTerminalWidth,
// or DefaultTerminalWidth when stdout is not a terminal.
func Width() int {
	if !IsStdoutTTY() {
		return DefaultTerminalWidth
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return DefaultTerminalWidth
	}
	if w < MinTerminalWidth {
		return MinTerminalWidth
	}
	return w
}

// =============================================================================
// COLOR PROFILE
// =============================================================================

var (
	profileOnce sync.Once
	profile     termenv.Profile
)

// ColorProfile determines the color profile to use, honoring NO_COLOR
// (https://no-color.org/) and FORCE_COLOR.
func ColorProfile() termenv.Profile {
	profileOnce.Do(func() {
		switch {
		case os.Getenv("NO_COLOR") != "":
			profile = termenv.Ascii
		case strings.TrimSpace(os.Getenv("FORCE_COLOR")) != "":
			profile = termenv.ANSI256
		case !IsStdoutTTY():
			profile = termenv.Ascii
		default:
			profile = termenv.ColorProfile()
		}
	})
	return profile
}

// ColorEnabled reports whether styled output should carry color.
func ColorEnabled() bool {
	return ColorProfile() != termenv.Ascii
}
