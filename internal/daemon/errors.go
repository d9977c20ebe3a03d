package daemon

import "errors"

// Wiring and lifecycle errors.
var (
	ErrMissingLogger     = errors.New("daemon: logger is required")
	ErrMissingAPIHandler = errors.New("daemon: admin API handler is required")
	ErrMissingManager    = errors.New("daemon: server manager is required")

	// ErrManagerNotStarted is returned by Shutdown before Start was called.
	ErrManagerNotStarted = errors.New("daemon: server manager not started")
	ErrAlreadyStarted    = errors.New("daemon: server manager already started")
)
