// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knightcli/knight/internal/fileio"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	fs, err := fileio.New(t.TempDir(), 1<<20)
	require.NoError(t, err)
	return NewContext(fs, nil, nil)
}

// =============================================================================
// FILE CONTEXT TESTS
// =============================================================================

func TestFileContextPreservesInsertionOrder(t *testing.T) {
	rc := newTestContext(t)

	rc.RememberFile("b.go", "package b")
	rc.RememberFile("a.go", "package a")
	rc.RememberFile("b.go", "package b2") // replace, keeps position

	assert.Equal(t, []string{"b.go", "a.go"}, rc.FilePaths())

	block := rc.FileContext()
	assert.Contains(t, block, "--- b.go ---\npackage b2")
	assert.Contains(t, block, "--- a.go ---\npackage a")
	assert.Less(t, indexOf(block, "b.go"), indexOf(block, "a.go"))
}

func TestFileContextEmptyWhenNothingRemembered(t *testing.T) {
	rc := newTestContext(t)
	assert.Empty(t, rc.FileContext())
}

func TestForgetFile(t *testing.T) {
	rc := newTestContext(t)
	rc.RememberFile("x.txt", "x")
	rc.ForgetFile("x.txt")

	assert.Zero(t, rc.FileCount())
	assert.Empty(t, rc.FilePaths())
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// =============================================================================
// CREDENTIAL TESTS
// =============================================================================

func TestCredentialsRoundTrip(t *testing.T) {
	dir := t.TempDir()

	creds, err := OpenCredentials(dir)
	require.NoError(t, err)
	require.NoError(t, creds.Set(CredGitHubToken, "ghp_secret"))

	// Reopen from disk.
	again, err := OpenCredentials(dir)
	require.NoError(t, err)
	token, err := again.Get(CredGitHubToken)
	require.NoError(t, err)
	assert.Equal(t, "ghp_secret", token)
}

func TestCredentialsStoredEncrypted(t *testing.T) {
	dir := t.TempDir()

	creds, err := OpenCredentials(dir)
	require.NoError(t, err)
	require.NoError(t, creds.Set(CredGitHubToken, "ghp_plaintext_marker"))

	raw, err := os.ReadFile(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "ghp_plaintext_marker")
	assert.Contains(t, string(raw), "ENC:")
}

func TestCredentialsMissing(t *testing.T) {
	creds, err := OpenCredentials(t.TempDir())
	require.NoError(t, err)

	_, err = creds.Get(CredGitHubToken)
	assert.ErrorIs(t, err, ErrNoCredential)
}

// =============================================================================
// BACKGROUND PROCESS TESTS
// =============================================================================

func TestProcStopTerminatesProcess(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	SetProcGroup(cmd)
	require.NoError(t, cmd.Start())

	p := NewProc(cmd, "sleep 60")
	assert.True(t, p.Alive())

	require.NoError(t, p.Stop())
	assert.True(t, p.WaitExit(5*time.Second))
	assert.False(t, p.Alive())
}

func TestShutdownStopsAdoptedProcs(t *testing.T) {
	rc := newTestContext(t)

	cmd := exec.Command("sleep", "60")
	SetProcGroup(cmd)
	require.NoError(t, cmd.Start())
	rc.AdoptProc(NewProc(cmd, "sleep 60"))

	require.NoError(t, rc.Shutdown())
	assert.Empty(t, rc.Procs())
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestWatcherRemembersWrittenFiles(t *testing.T) {
	rc := newTestContext(t)

	w, err := NewWatcher(rc)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	path := filepath.Join(rc.WorkDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	require.Eventually(t, func() bool {
		return rc.FileCount() == 1
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"notes.txt"}, rc.FilePaths())
}
