// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// skipDirs are directory names the watcher never descends into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
}

// Watcher keeps the run context in sync with the workspace: files the
// plan creates or edits are re-read into the file context so the next
// model call sees current content.
type Watcher struct {
	ctx     *Context
	watcher *fsnotify.Watcher
}

// NewWatcher creates a recursive workspace watcher for rc.
func NewWatcher(rc *Context) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{ctx: rc, watcher: fsw}
	if err := w.addTree(rc.WorkDir()); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree registers dir and every non-skipped subdirectory.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir && (skipDirs[name] || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Run processes events until ctx is cancelled or the watcher closes.
// It is meant to run in its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.ctx.Logger().Debug("watcher error", "error", err)
		}
	}
}

// handle folds one filesystem event into the run context.
func (w *Watcher) handle(event fsnotify.Event) {
	rel := w.ctx.Files().Rel(event.Name)
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || skipDirs[base] {
		return
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.ctx.ForgetFile(rel)

	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if event.Has(fsnotify.Create) {
				_ = w.addTree(event.Name)
			}
			return
		}
		content, err := w.ctx.Files().Read(rel)
		if err != nil {
			// Oversized or unreadable files stay out of context.
			return
		}
		w.ctx.RememberFile(rel, content)
		w.ctx.Logger().Debug("updated file context", "path", rel, "bytes", len(content))
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
