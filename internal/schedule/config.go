package schedule

import (
	"fmt"

	"github.com/yoyostream/transcoderd/internal/window"
)

// Config is the schedule of one channel as published by the
// Configuration Service.
type Config struct {
	ChannelID    string `json:"channelId"`
	ChannelName  string `json:"channelName,omitempty"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	WorkdaysOnly bool   `json:"workdaysOnly,omitempty"`
	StoragePath  string `json:"storagePath,omitempty"`
}

// Window parses the configured start and end times.
func (c Config) Window() (window.Window, error) {
	if c.ChannelID == "" {
		return window.Window{}, fmt.Errorf("missing channelId")
	}
	w, err := window.Parse(c.StartTime, c.EndTime)
	if err != nil {
		return window.Window{}, fmt.Errorf("channel %s: %w", c.ChannelID, err)
	}
	return w, nil
}
