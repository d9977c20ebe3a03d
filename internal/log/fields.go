// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldSweepID   = "sweep_id"
	FieldChannelID = "channel_id"
	FieldTraceID   = "trace_id"
	FieldSpanID    = "span_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldScheduler = "scheduler"
	FieldAction    = "action"
	FieldMode      = "mode"

	// Schedule fields
	FieldStartTime = "start_time"
	FieldEndTime   = "end_time"
	FieldNextRun   = "next_run"
	FieldTimezone  = "timezone"

	// Path / URL fields
	FieldPath       = "path"
	FieldTargetPath = "target_path"
	FieldBaseURL    = "base_url"

	// Result fields
	FieldDuration = "duration"
	FieldSize     = "size"
)
