// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knightcli/knight/internal/display"
	"github.com/knightcli/knight/internal/fileio"
	"github.com/knightcli/knight/internal/llm"
	"github.com/knightcli/knight/internal/session"
)

func newCodegenFixture(t *testing.T, model llm.Client) (*CodeGenerator, *session.Context) {
	t.Helper()
	fs, err := fileio.New(t.TempDir(), 1<<20)
	require.NoError(t, err)
	rc := session.NewContext(fs, nil, nil)
	console := display.NewWriter(&bytes.Buffer{})
	return NewCodeGenerator(model, console, 4), rc
}

func TestGenerateWritesAllFiles(t *testing.T) {
	model := &fakeModel{reply: func(req llm.Request) (string, error) {
		return "print('generated')", nil
	}}
	gen, rc := newCodegenFixture(t, model)

	err := gen.Generate(context.Background(), rc, []FileSpec{
		{Filename: "main.py", Prompt: "entry point"},
		{Filename: "util.py", Prompt: "helpers"},
	}, "app")
	require.NoError(t, err)

	content, err := rc.Files().Read("app/main.py")
	require.NoError(t, err)
	assert.Equal(t, "print('generated')\n", content)
	assert.True(t, rc.Files().Exists("app/util.py"))
	assert.Equal(t, 2, model.callCount())
}

func TestGenerateFailureIsIsolated(t *testing.T) {
	model := &fakeModel{reply: func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "bad.py") {
			return "", errors.New("model exploded")
		}
		return "ok = True", nil
	}}
	gen, rc := newCodegenFixture(t, model)

	err := gen.Generate(context.Background(), rc, []FileSpec{
		{Filename: "good.py", Prompt: "fine"},
		{Filename: "bad.py", Prompt: "broken"},
	}, "out")

	require.Error(t, err, "overall result is the AND of per-file outcomes")
	assert.Contains(t, err.Error(), "1 of 2")

	// The sibling's output survives the failure.
	content, readErr := rc.Files().Read("out/good.py")
	require.NoError(t, readErr)
	assert.Equal(t, "ok = True\n", content)
	assert.False(t, rc.Files().Exists("out/bad.py"))
}

func TestGenerateStripsFences(t *testing.T) {
	model := &fakeModel{reply: func(req llm.Request) (string, error) {
		return "```python\nx = 1\n```", nil
	}}
	gen, rc := newCodegenFixture(t, model)

	require.NoError(t, gen.GenerateOne(context.Background(), rc, FileSpec{
		Filename: "x.py", Prompt: "one var",
	}, ""))

	content, err := rc.Files().Read("x.py")
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", content)
}

func TestGenerateRejectsEmptyContent(t *testing.T) {
	model := &fakeModel{reply: func(req llm.Request) (string, error) {
		return "   ", nil
	}}
	gen, rc := newCodegenFixture(t, model)

	err := gen.GenerateOne(context.Background(), rc, FileSpec{Filename: "x.py", Prompt: "p"}, "")
	require.Error(t, err)
	assert.False(t, rc.Files().Exists("x.py"))
}

func TestGenerateRemembersFilesInContext(t *testing.T) {
	model := &fakeModel{reply: func(req llm.Request) (string, error) {
		return "content", nil
	}}
	gen, rc := newCodegenFixture(t, model)

	require.NoError(t, gen.Generate(context.Background(), rc, []FileSpec{
		{Filename: "a.txt", Prompt: "a"},
	}, ""))
	assert.Equal(t, 1, rc.FileCount())
}
