// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBareGoal(t *testing.T) {
	cmd, args := parse([]string{"build", "me", "a", "flask", "app"})
	assert.Equal(t, CmdRun, cmd)
	assert.Equal(t, "build me a flask app", args.Goal)
}

func TestParseExplicitRun(t *testing.T) {
	cmd, args := parse([]string{"run", "ship it"})
	assert.Equal(t, CmdRun, cmd)
	assert.Equal(t, "ship it", args.Goal)
}

func TestParseRunWithoutGoalShowsHelp(t *testing.T) {
	cmd, _ := parse([]string{"run"})
	assert.Equal(t, CmdHelp, cmd)
}

func TestParseFlags(t *testing.T) {
	cmd, args := parse([]string{"-y", "--model", "cloud", "--workdir=/tmp/proj", "do", "things"})
	assert.Equal(t, CmdRun, cmd)
	assert.True(t, args.Yes)
	assert.Equal(t, "cloud", args.Model)
	assert.Equal(t, "/tmp/proj", args.Workdir)
	assert.Equal(t, "do things", args.Goal)
}

func TestParseSubcommands(t *testing.T) {
	tests := []struct {
		raw  []string
		cmd  Command
		sub  string
	}{
		{[]string{"tools"}, CmdTools, ""},
		{[]string{"history"}, CmdHistory, ""},
		{[]string{"history", "abc-123"}, CmdHistory, "abc-123"},
		{[]string{"config", "init"}, CmdConfig, "init"},
		{[]string{"auth", "set"}, CmdAuth, "set"},
		{[]string{"version"}, CmdVersion, ""},
		{[]string{"help"}, CmdHelp, ""},
		{[]string{}, CmdHelp, ""},
	}
	for _, tt := range tests {
		cmd, args := parse(tt.raw)
		assert.Equal(t, tt.cmd, cmd, "%v", tt.raw)
		assert.Equal(t, tt.sub, args.Subcommand, "%v", tt.raw)
	}
}

func TestParseUnknownFlagIgnored(t *testing.T) {
	cmd, args := parse([]string{"--frobnicate", "tools"})
	assert.Equal(t, CmdTools, cmd)
	assert.Empty(t, args.Goal)
}

func TestParseVersionFlag(t *testing.T) {
	cmd, _ := parse([]string{"--version"})
	assert.Equal(t, CmdVersion, cmd)
}
