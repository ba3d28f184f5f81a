// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/knightcli/knight/internal/session"
)

// =============================================================================
// DESCRIPTORS
// =============================================================================

// Param declares one accepted parameter of a tool. Internal parameters
// are filled by the executor (session handles, directory overrides) and
// never shown to the model.
type Param struct {
	Name     string
	Hint     string
	Internal bool
}

// Invocation carries everything a tool receives per call.
type Invocation struct {
	Session *session.Context
	Args    map[string]any
}

// RunFunc executes a tool. A nil return means success; anything else
// aborts the remaining plan unless the tool itself tolerates it.
type RunFunc func(ctx context.Context, inv Invocation) error

// Descriptor is one registered capability.
type Descriptor struct {
	Name        string
	Description string
	Params      []Param
	Run         RunFunc
}

// Accepts reports whether the tool declares the parameter name.
func (d *Descriptor) Accepts(name string) bool {
	for _, p := range d.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// FilterArgs keeps only declared parameters, returning the dropped
// names so the caller can warn about them. Argument values are passed
// through untouched.
func (d *Descriptor) FilterArgs(args map[string]any) (map[string]any, []string) {
	kept := make(map[string]any, len(args))
	var dropped []string
	for name, value := range args {
		if d.Accepts(name) {
			kept[name] = value
		} else {
			dropped = append(dropped, name)
		}
	}
	sort.Strings(dropped)
	return kept, dropped
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is the process-wide tool catalog: populated at startup,
// read-only afterward.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Descriptor
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Descriptor)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(d *Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if d.Run == nil {
		return fmt.Errorf("tool %q has no run function", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("tool %q is already registered", d.Name)
	}
	r.tools[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// MustRegister is Register for startup wiring, panicking on conflicts.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// AcceptedParams returns the declared parameter names of a tool,
// internal ones included. The second return mirrors Lookup.
func (r *Registry) AcceptedParams(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	out := make([]string, len(d.Params))
	for i, p := range d.Params {
		out[i] = p.Name
	}
	return out, true
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// CatalogText renders the catalog for the planning prompt, one line per
// tool: `name(param: hint, ...): description`. Internal parameters are
// excluded from the model's view.
func (r *Registry) CatalogText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	for _, name := range r.order {
		d := r.tools[name]
		var params []string
		for _, p := range d.Params {
			if p.Internal {
				continue
			}
			params = append(params, fmt.Sprintf("%s: %s", p.Name, p.Hint))
		}
		fmt.Fprintf(&sb, "- `%s(%s)`: %s\n", d.Name, strings.Join(params, ", "), d.Description)
	}
	return sb.String()
}

// =============================================================================
// ARGUMENT HELPERS
// =============================================================================

// ArgString extracts a string argument, tolerating absence.
func ArgString(args map[string]any, name string) string {
	v, ok := args[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// ArgBool extracts a boolean argument. Models occasionally emit the
// strings "true"/"false" instead of JSON booleans, so accept both.
func ArgBool(args map[string]any, name string) bool {
	v, ok := args[name]
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(strings.TrimSpace(val), "true")
	default:
		return false
	}
}
