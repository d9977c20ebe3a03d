package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/yoyostream/transcoderd/internal/session"
)

// Scheduler names.
const (
	NamePreload = "preload"
	NameRecord  = "record"
)

// ConfigSource is the Configuration Service as seen by the schedulers.
type ConfigSource interface {
	PreloadConfigs(ctx context.Context) ([]Config, error)
	RecordConfigs(ctx context.Context) ([]Config, error)
	ChannelSourceURL(ctx context.Context, channelID string) (string, error)
}

// WorkdayOracle answers whether a date is a workday.
type WorkdayOracle interface {
	IsWorkday(ctx context.Context, t time.Time) bool
}

// PreloadBinding keeps channel transcoders warm during their window.
func PreloadBinding(src ConfigSource, sm session.Manager) Binding {
	return Binding{
		Name:  NamePreload,
		Fetch: src.PreloadConfigs,
		OnEnter: func(ctx context.Context, cfg Config) error {
			url, err := src.ChannelSourceURL(ctx, cfg.ChannelID)
			if err != nil {
				return fmt.Errorf("resolve source url: %w", err)
			}
			return sm.StartPreload(ctx, cfg.ChannelID, url)
		},
		OnExit: func(ctx context.Context, cfg Config) error {
			return sm.StopPreload(ctx, cfg.ChannelID)
		},
	}
}

// RecordBinding records channels during their window, on workdays only
// when the config asks for it.
func RecordBinding(src ConfigSource, sm session.Manager, oracle WorkdayOracle) Binding {
	return Binding{
		Name:  NameRecord,
		Fetch: src.RecordConfigs,
		OnEnter: func(ctx context.Context, cfg Config) error {
			return sm.EnableRecording(ctx, cfg.ChannelID, RecordingConfig(cfg))
		},
		OnExit: func(ctx context.Context, cfg Config) error {
			return sm.DisableRecording(ctx, cfg.ChannelID)
		},
		Gate: WorkdayGate(oracle),
	}
}

// WorkdayGate passes configs without WorkdaysOnly and otherwise asks oracle.
func WorkdayGate(oracle WorkdayOracle) func(context.Context, Config, time.Time) bool {
	return func(ctx context.Context, cfg Config, now time.Time) bool {
		if !cfg.WorkdaysOnly {
			return true
		}
		return oracle.IsWorkday(ctx, now)
	}
}

// RecordingConfig converts a schedule into the Session Manager payload.
func RecordingConfig(cfg Config) session.RecordingConfig {
	return session.RecordingConfig{
		ChannelID:    cfg.ChannelID,
		ChannelName:  cfg.ChannelName,
		StartTime:    cfg.StartTime,
		EndTime:      cfg.EndTime,
		WorkdaysOnly: cfg.WorkdaysOnly,
		StoragePath:  cfg.StoragePath,
	}
}
