// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows

package session

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// SetProcGroup arranges for cmd to run in its own process group so the
// whole tree can be signalled at once. Must be called before Start.
func SetProcGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// terminateGroup sends SIGTERM to the process group.
func terminateGroup(cmd *exec.Cmd) error {
	return signalGroup(cmd, unix.SIGTERM)
}

// killGroup sends SIGKILL to the process group.
func killGroup(cmd *exec.Cmd) error {
	return signalGroup(cmd, unix.SIGKILL)
}

func signalGroup(cmd *exec.Cmd, sig unix.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, sig)
	if err == unix.ESRCH {
		return nil
	}
	if err != nil {
		// Group signalling can fail if Setpgid was not applied; fall
		// back to the single process.
		return cmd.Process.Signal(sig)
	}
	return nil
}
