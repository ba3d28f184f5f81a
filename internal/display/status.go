// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package display

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// spinnerFrames cycle once per tick while a Status is live.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Status is a single-line elapsed-time indicator for long operations
// (model calls, captured subprocesses). On a TTY it redraws in place;
// otherwise it prints the label once and stays quiet.
type Status struct {
	mu      sync.Mutex
	out     io.Writer
	label   string
	started time.Time
	done    chan struct{}
	wg      sync.WaitGroup
	live    bool
	tty     bool
}

// StartStatus begins rendering a status line for label.
func StartStatus(label string) *Status {
	s := &Status{
		out:     os.Stdout,
		label:   label,
		started: time.Now(),
		done:    make(chan struct{}),
		tty:     IsStdoutTTY(),
	}
	s.start()
	return s
}

func (s *Status) start() {
	if !s.tty {
		fmt.Fprintf(s.out, "%s...\n", s.label)
		return
	}
	s.live = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()
		frame := 0
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.mu.Lock()
				label := s.label
				s.mu.Unlock()
				elapsed := int(time.Since(s.started).Seconds())
				line := fmt.Sprintf("%s %s (%ds)", spinnerFrames[frame%len(spinnerFrames)], label, elapsed)
				fmt.Fprintf(s.out, "\r\033[K%s", DimStyle.Render(line))
				frame++
			}
		}
	}()
}

// SetLabel replaces the rendered label without resetting the clock.
func (s *Status) SetLabel(label string) {
	s.mu.Lock()
	s.label = label
	s.mu.Unlock()
}

// Stop tears down the indicator and clears the line.
func (s *Status) Stop() {
	if !s.live {
		return
	}
	s.live = false
	close(s.done)
	s.wg.Wait()
	fmt.Fprint(s.out, "\r\033[K")
}

// Elapsed reports how long the status has been running.
func (s *Status) Elapsed() time.Duration {
	return time.Since(s.started)
}

// StreamEcho renders streamed model tokens as they arrive, used while a
// plan is being generated. It tracks whether anything was written so
// callers can decide to add a trailing newline. Built via Console.Stream.
type StreamEcho struct {
	out   io.Writer
	wrote bool
}

// Write renders one token chunk.
func (e *StreamEcho) Write(token string) {
	if token == "" {
		return
	}
	e.wrote = true
	fmt.Fprint(e.out, DimStyle.Render(token))
}

// Finish terminates the echoed stream with a newline when needed.
func (e *StreamEcho) Finish() {
	if e.wrote {
		fmt.Fprintln(e.out)
	}
}
