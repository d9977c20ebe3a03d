// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	xglog "github.com/yoyostream/transcoderd/internal/log"
)

// Set starts cmd as the leader of a new process group. For commands built
// with exec.CommandContext, cancelling the context sends SIGTERM to the group
// and SIGKILL once grace has passed; a zero grace kills immediately.
// Commands without a context only get the new group.
func Set(cmd *exec.Cmd, grace time.Duration) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	// exec.CommandContext installs a default Cancel; Start rejects one
	// on a command created without a context.
	if cmd.Cancel == nil {
		return
	}
	cmd.Cancel = func() error {
		if grace <= 0 {
			return Kill(cmd, syscall.SIGKILL)
		}
		err := Kill(cmd, syscall.SIGTERM)
		pid := cmd.Process.Pid
		time.AfterFunc(grace, func() {
			// Survivors of SIGTERM, including orphaned children.
			err := syscall.Kill(-pid, syscall.SIGKILL)
			_ = record(syscall.SIGKILL, err)
			if err == nil {
				logger := xglog.WithComponent("procgroup")
				logger.Warn().
					Int("pid", pid).
					Dur("grace", grace).
					Msg("process group ignored SIGTERM, killed")
			}
		})
		return err
	}
}

// Kill sends sig to the process group of cmd. A process that already
// exited is not an error.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	// Setpgid makes the child a group leader, so PGID == PID.
	return record(sig, syscall.Kill(-cmd.Process.Pid, sig))
}
