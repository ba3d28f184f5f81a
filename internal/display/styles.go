// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Centralized lipgloss styles for all knight output.
package display

import (
	"github.com/charmbracelet/lipgloss"
)

// init configures lipgloss to match the detected terminal capabilities.
func init() {
	lipgloss.SetColorProfile(ColorProfile())
}

var (
	// TitleStyle is used for the agent banner and plan title.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// StepStyle is used for per-step rule headers.
	StepStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("75")) // Steel blue

	// ReasoningStyle renders the model's reasoning for a step.
	ReasoningStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("245")) // Light gray

	// SuccessStyle is used for completed operations.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")) // Green

	// WarnStyle is used for tolerated failures and dropped arguments.
	WarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Amber

	// ErrorStyle is used for fatal failures.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("203")) // Rose

	// DimStyle is used for secondary detail (paths, output digests).
	DimStyle = lipgloss.NewStyle().
			Faint(true)

	// CommandStyle highlights a shell command about to run.
	CommandStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("177")) // Orchid

	// RuleStyle draws horizontal rules between steps.
	RuleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)
