// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts media tools in their own process group so a
// cancelled probe or remux takes its children down with it.
package procgroup

import (
	"errors"
	"os"
	"syscall"

	"github.com/yoyostream/transcoderd/internal/metrics"
)

func isGone(err error) bool {
	return errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone)
}

func signalName(sig syscall.Signal) string {
	if sig == syscall.SIGKILL {
		return "SIGKILL"
	}
	return "SIGTERM"
}

// record counts a delivered group signal and drops "already gone" errors.
func record(sig syscall.Signal, err error) error {
	switch {
	case err == nil:
		metrics.IncProcTerminate(signalName(sig), "sent")
		return nil
	case isGone(err):
		metrics.IncProcTerminate(signalName(sig), "esrch")
		return nil
	default:
		metrics.IncProcTerminate(signalName(sig), "error")
		return err
	}
}
