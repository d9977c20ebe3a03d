// Package session defines the contract of the Session Manager that owns
// the transcoding processes, and an HTTP adapter for it.
package session

import (
	"context"
	"fmt"
)

// RecordingConfig is handed to the Session Manager when recording is enabled.
type RecordingConfig struct {
	ChannelID    string `json:"channelId"`
	ChannelName  string `json:"channelName,omitempty"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	WorkdaysOnly bool   `json:"workdaysOnly"`
	StoragePath  string `json:"storagePath,omitempty"`
}

// Manager is the set of actions the schedulers and the recovery service
// invoke on the Session Manager. Every method may fail with an *Error.
type Manager interface {
	StartPreload(ctx context.Context, channelID, sourceURL string) error
	StopPreload(ctx context.Context, channelID string) error
	EnableRecording(ctx context.Context, channelID string, cfg RecordingConfig) error
	DisableRecording(ctx context.Context, channelID string) error
	StopChannel(ctx context.Context, channelID string) error
	IsRecording(ctx context.Context, channelID string) (bool, error)
}

// Error is a failed Session Manager call.
type Error struct {
	Op        string
	ChannelID string
	Status    int
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("session %s %s: status %d: %s", e.Op, e.ChannelID, e.Status, msg)
	}
	return fmt.Sprintf("session %s %s: %s", e.Op, e.ChannelID, msg)
}

func (e *Error) Unwrap() error { return e.Err }
