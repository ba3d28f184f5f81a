// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/knightcli/knight/internal/fileio"
)

// =============================================================================
// EXECUTION CONTEXT
// =============================================================================

// Context is the shared state for one agent run. It is safe for
// concurrent use; the code generator writes file context from several
// goroutines at once.
type Context struct {
	mu    sync.RWMutex
	files map[string]string
	order []string
	procs []*Proc

	workDir string
	repoURL string
	fs      *fileio.Service
	creds   *Credentials
	logger  *slog.Logger
}

// NewContext creates a run context rooted at the workspace.
func NewContext(fs *fileio.Service, creds *Credentials, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		files:   make(map[string]string),
		workDir: fs.Root(),
		fs:      fs,
		creds:   creds,
		logger:  logger,
	}
}

// WorkDir returns the absolute working directory for the run.
func (c *Context) WorkDir() string { return c.workDir }

// Files returns the workspace file layer.
func (c *Context) Files() *fileio.Service { return c.fs }

// Credentials returns the credential store, which may be empty.
func (c *Context) Credentials() *Credentials { return c.creds }

// Logger returns the run logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// SetRepoURL remembers the clone URL of the repository a plan created
// or reused, so later git steps can skip a second lookup.
func (c *Context) SetRepoURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repoURL = url
}

// RepoURL returns the remembered clone URL, empty when no repository
// has been touched yet.
func (c *Context) RepoURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.repoURL
}

// =============================================================================
// FILE CONTEXT
// =============================================================================

// RememberFile records file content so later model calls can see it.
// Re-recording a path replaces the previous content.
func (c *Context) RememberFile(path, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.files[path]; !seen {
		c.order = append(c.order, path)
	}
	c.files[path] = content
}

// ForgetFile drops a path from the accumulated context.
func (c *Context) ForgetFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.files[path]; !seen {
		return
	}
	delete(c.files, path)
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// FileCount returns how many files are in context.
func (c *Context) FileCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files)
}

// FilePaths returns the remembered paths in insertion order.
func (c *Context) FilePaths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// FileContext renders the accumulated files as a prompt block. Returns
// an empty string when nothing has been remembered.
func (c *Context) FileContext() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.files) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Project files:\n")
	for _, path := range c.order {
		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", path, c.files[path])
	}
	return sb.String()
}

// =============================================================================
// BACKGROUND PROCESSES
// =============================================================================

// AdoptProc records a background process the run is responsible for.
func (c *Context) AdoptProc(p *Proc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.procs = append(c.procs, p)
	c.logger.Info("adopted background process", "pid", p.PID(), "command", p.Command)
}

// Procs returns the live background process handles.
func (c *Context) Procs() []*Proc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Proc, len(c.procs))
	copy(out, c.procs)
	return out
}

// Shutdown stops every background process the run started. Errors are
// collected per process; a failed kill does not stop the sweep.
func (c *Context) Shutdown() error {
	c.mu.Lock()
	procs := c.procs
	c.procs = nil
	c.mu.Unlock()

	var failed []string
	for _, p := range procs {
		if err := p.Stop(); err != nil {
			c.logger.Warn("failed to stop background process", "pid", p.PID(), "error", err)
			failed = append(failed, fmt.Sprintf("pid %d: %v", p.PID(), err))
			continue
		}
		c.logger.Info("stopped background process", "pid", p.PID(), "command", p.Command)
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return fmt.Errorf("shutdown incomplete: %s", strings.Join(failed, "; "))
	}
	return nil
}
