// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
	"time"
)

// Set leaves cancellation to the default Process.Kill; Windows has no
// process groups to signal.
func Set(cmd *exec.Cmd, _ time.Duration) {}

// Kill maps SIGKILL to Process.Kill. Other signals are ignored.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil || sig != syscall.SIGKILL {
		return nil
	}
	return record(sig, cmd.Process.Kill())
}
