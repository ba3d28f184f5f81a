// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopRun(ctx context.Context, inv Invocation) error { return nil }

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Descriptor{Name: "demo", Run: noopRun}))

	err := reg.Register(&Descriptor{Name: "demo", Run: noopRun})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Descriptor{Name: "demo", Run: noopRun}))

	d, ok := reg.Lookup("demo")
	require.True(t, ok)
	assert.Equal(t, "demo", d.Name)

	_, ok = reg.Lookup("missing")
	assert.False(t, ok)
}

func TestCatalogTextExcludesInternalParams(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Descriptor{
		Name:        "run_shell_command",
		Description: "Executes a shell command.",
		Params: []Param{
			{Name: "command", Hint: "string"},
			{Name: "cwd", Hint: "string (optional)"},
			{Name: "session", Hint: "handle", Internal: true},
		},
		Run: noopRun,
	}))

	catalog := reg.CatalogText()
	assert.Contains(t, catalog, "`run_shell_command(command: string, cwd: string (optional))`: Executes a shell command.")
	assert.NotContains(t, catalog, "session")
}

func TestAcceptedParams(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Descriptor{
		Name: "demo",
		Params: []Param{
			{Name: "command", Hint: "string"},
			{Name: "session", Hint: "handle", Internal: true},
		},
		Run: noopRun,
	}))

	params, ok := reg.AcceptedParams("demo")
	require.True(t, ok)
	assert.Equal(t, []string{"command", "session"}, params)

	_, ok = reg.AcceptedParams("missing")
	assert.False(t, ok)
}

func TestFilterArgsDropsUndeclared(t *testing.T) {
	d := &Descriptor{
		Name: "demo",
		Params: []Param{
			{Name: "command", Hint: "string"},
			{Name: "cwd", Hint: "string"},
		},
		Run: noopRun,
	}

	kept, dropped := d.FilterArgs(map[string]any{
		"command": "ls",
		"cwd":     ".",
		"bogus":   1,
	})

	assert.Equal(t, map[string]any{"command": "ls", "cwd": "."}, kept)
	assert.Equal(t, []string{"bogus"}, dropped)
}

func TestArgBoolAcceptsStrings(t *testing.T) {
	args := map[string]any{
		"a": true,
		"b": "true",
		"c": "TRUE",
		"d": "false",
		"e": 1,
	}
	assert.True(t, ArgBool(args, "a"))
	assert.True(t, ArgBool(args, "b"))
	assert.True(t, ArgBool(args, "c"))
	assert.False(t, ArgBool(args, "d"))
	assert.False(t, ArgBool(args, "e"))
	assert.False(t, ArgBool(args, "missing"))
}

func TestParseFileSpecs(t *testing.T) {
	specs, err := parseFileSpecs([]any{
		map[string]any{"filename": "main.py", "prompt": "entry point"},
		map[string]any{"filename": "util.py", "prompt": "helpers"},
	})
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "main.py", specs[0].Filename)

	_, err = parseFileSpecs([]any{map[string]any{"filename": "x"}})
	require.Error(t, err)

	_, err = parseFileSpecs("not a list")
	require.Error(t, err)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "print(1)", StripFences("```python\nprint(1)\n```"))
	assert.Equal(t, "print(1)", StripFences("```\nprint(1)\n```"))
	assert.Equal(t, "plain code", StripFences("plain code"))
}
