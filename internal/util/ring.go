// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "sync"

// LineRing is a bounded ring buffer that retains the most recent N lines
// appended to it. It is safe for one writer and concurrent readers, which
// matches its use for capturing subprocess output while a status line
// polls the tail.
type LineRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
	total int
}

// NewLineRing creates a ring retaining at most capacity lines.
// A capacity below one is treated as one.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 1
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Append adds a line, evicting the oldest when the ring is full.
func (r *LineRing) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
	r.total++
}

// Lines returns the retained lines in append order.
func (r *LineRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}

// Tail returns at most n of the most recent lines in append order.
func (r *LineRing) Tail(n int) []string {
	lines := r.Lines()
	if n >= 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// Total reports how many lines have been appended overall, including
// lines the ring has since evicted.
func (r *LineRing) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
