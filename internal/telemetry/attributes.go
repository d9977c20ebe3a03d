// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	// Schedule attributes
	ScheduleNameKey    = "schedule.name"
	ScheduleChannelKey = "schedule.channel_id"
	ScheduleActionKey  = "schedule.action"
	ScheduleResultKey  = "schedule.result"

	// Recovery attributes
	RecoverySweepIDKey  = "recovery.sweep_id"
	RecoveryModeKey     = "recovery.mode"
	RecoveryScannedKey  = "recovery.scanned"
	RecoveryFixedKey    = "recovery.fixed"
	RecoveryFailedKey   = "recovery.failed"
	RecoveryRenamedKey  = "recovery.renamed"
	RecoveryRepairedKey = "recovery.repaired"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// ScheduleAttributes creates span attributes for one scheduled action.
func ScheduleAttributes(name, channelID, action string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(ScheduleNameKey, name),
		attribute.String(ScheduleActionKey, action),
	}
	if channelID != "" {
		attrs = append(attrs, attribute.String(ScheduleChannelKey, channelID))
	}
	return attrs
}

// SweepAttributes creates span attributes identifying a recovery sweep.
func SweepAttributes(id, mode string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RecoverySweepIDKey, id),
		attribute.String(RecoveryModeKey, mode),
	}
}

// SweepResultAttributes creates span attributes for sweep counters.
func SweepResultAttributes(scanned, fixed, renamed, repaired, failed int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(RecoveryScannedKey, scanned),
		attribute.Int(RecoveryFixedKey, fixed),
		attribute.Int(RecoveryRenamedKey, renamed),
		attribute.Int(RecoveryRepairedKey, repaired),
		attribute.Int(RecoveryFailedKey, failed),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
