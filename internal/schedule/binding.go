package schedule

import (
	"context"
	"time"
)

// Binding plugs concrete behavior into the generic Scheduler.
type Binding struct {
	// Name identifies the scheduler in logs, metrics and the admin API.
	Name string
	// Fetch returns the current schedule set.
	Fetch func(ctx context.Context) ([]Config, error)
	// OnEnter runs when a channel's window opens.
	OnEnter func(ctx context.Context, cfg Config) error
	// OnExit runs when a channel's window closes.
	OnExit func(ctx context.Context, cfg Config) error
	// Gate optionally vetoes OnEnter. It never affects OnExit.
	Gate func(ctx context.Context, cfg Config, now time.Time) bool
}
