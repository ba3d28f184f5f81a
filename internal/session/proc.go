// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// stopGrace is how long Stop waits for a terminated process to exit
// before escalating to a hard kill.
const stopGrace = 5 * time.Second

// Proc is a handle to a background process started by a plan step,
// typically a dev server. The run owns it and must stop it on exit.
type Proc struct {
	Command   string
	StartedAt time.Time

	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	stopped bool
}

// NewProc wraps an already-started command. It takes over the Wait
// call, so the caller must not Wait on cmd after this.
func NewProc(cmd *exec.Cmd, command string) *Proc {
	p := &Proc{
		Command:   command,
		StartedAt: time.Now(),
		cmd:       cmd,
		done:      make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p
}

// PID returns the process id.
func (p *Proc) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Alive reports whether the process is still running.
func (p *Proc) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// WaitExit blocks until the process exits or the timeout elapses,
// returning true if it exited.
func (p *Proc) WaitExit(timeout time.Duration) bool {
	select {
	case <-p.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Stop terminates the process group: first politely, then hard if it
// is still running after the grace period.
func (p *Proc) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	if !p.Alive() {
		return nil
	}
	if err := terminateGroup(p.cmd); err != nil {
		return fmt.Errorf("terminate: %w", err)
	}
	if p.WaitExit(stopGrace) {
		return nil
	}
	if err := killGroup(p.cmd); err != nil {
		return fmt.Errorf("kill: %w", err)
	}
	p.WaitExit(stopGrace)
	return nil
}
