// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fileio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knightcli/knight/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

// PathError reports a path the workspace refused to touch.
type PathError struct {
	Path    string
	Message string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("workspace: %s [path: %s]", e.Message, e.Path)
}

// =============================================================================
// SERVICE
// =============================================================================

// Service performs rooted file operations. All paths are interpreted
// relative to the root; absolute paths are accepted only when they
// already point inside it.
type Service struct {
	root    string
	maxSize int64
}

// New creates a Service rooted at dir. The directory is created when it
// does not exist yet.
func New(dir string, maxSize int64) (*Service, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create workspace root: %w", err)
	}
	// Resolve symlinks so containment checks compare real paths.
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return &Service{root: abs, maxSize: maxSize}, nil
}

// Root returns the absolute workspace root.
func (s *Service) Root() string { return s.root }

// Resolve maps a model-supplied path to an absolute path inside the
// root, rejecting anything that escapes it.
func (s *Service) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &PathError{Path: path, Message: "path must not be empty"}
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.root, abs)
	}
	abs = filepath.Clean(abs)

	if !s.contains(abs) {
		return "", &PathError{Path: path, Message: "path escapes the workspace root"}
	}

	// If the path (or its nearest existing parent) is a symlink, check
	// where it really points.
	if real, err := resolveExisting(abs); err == nil && !s.contains(real) {
		return "", &PathError{Path: path, Message: "path resolves outside the workspace root"}
	}

	return abs, nil
}

// contains reports whether abs is the root or lies under it. A bare
// prefix check would let /work-evil match /work, so compare on a
// separator boundary.
func (s *Service) contains(abs string) bool {
	if abs == s.root {
		return true
	}
	return strings.HasPrefix(abs, s.root+string(filepath.Separator))
}

// resolveExisting resolves symlinks for abs, falling back through
// parents until one exists so not-yet-created files can be checked.
func resolveExisting(abs string) (string, error) {
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	parent := filepath.Dir(abs)
	realParent, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return abs, nil
	}
	return filepath.Join(realParent, filepath.Base(abs)), nil
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Write creates or replaces a file, creating parent directories as
// needed. The write is atomic.
func (s *Service) Write(path, content string) error {
	abs, err := s.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("cannot create parent directory for %s: %w", path, err)
	}
	if err := util.AtomicWriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// Read returns the file content, refusing files over the size cap.
func (s *Service) Read(path string) (string, error) {
	abs, err := s.Resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", path, err)
	}
	if info.IsDir() {
		return "", &PathError{Path: path, Message: "is a directory"}
	}
	if s.maxSize > 0 && info.Size() > s.maxSize {
		return "", &PathError{Path: path,
			Message: fmt.Sprintf("file is %d bytes, over the %d byte limit", info.Size(), s.maxSize)}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", path, err)
	}
	return string(data), nil
}

// List returns the entries of a directory, sorted, with a trailing
// slash on subdirectories. Hidden entries are skipped.
func (s *Service) List(path string) ([]string, error) {
	if path == "" {
		path = "."
	}
	abs, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot list %s: %w", path, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether a contained path exists.
func (s *Service) Exists(path string) bool {
	abs, err := s.Resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Rel returns path relative to the root for display.
func (s *Service) Rel(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return abs
	}
	return rel
}
