// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"

	"github.com/yoyostream/transcoderd/internal/recovery"
	"github.com/yoyostream/transcoderd/internal/schedule"
	"github.com/yoyostream/transcoderd/internal/workday"
)

// PingChecker wraps a ping function. Failures are unhealthy when the
// dependency is critical and degraded otherwise.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	critical bool
}

// NewPingChecker creates a checker around ping.
func NewPingChecker(name string, critical bool, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, critical: critical}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		status := StatusDegraded
		if c.critical {
			status = StatusUnhealthy
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// SchedulerChecker reports on one scheduler.
type SchedulerChecker struct {
	status func() schedule.Status
	name   string
}

// NewSchedulerChecker creates a checker for s.
func NewSchedulerChecker(s *schedule.Scheduler) *SchedulerChecker {
	return &SchedulerChecker{status: s.Status, name: "scheduler_" + s.Name()}
}

func (c *SchedulerChecker) Name() string { return c.name }

func (c *SchedulerChecker) Check(_ context.Context) CheckResult {
	st := c.status()
	switch {
	case !st.IsRunning:
		return CheckResult{Status: StatusUnhealthy, Message: "scheduler not running"}
	case st.LastFetchError != "":
		return CheckResult{
			Status:  StatusDegraded,
			Message: "running without schedules from the configuration service",
			Error:   st.LastFetchError,
		}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d channels scheduled", st.TotalScheduled)}
}

// WorkdayChecker reports a degraded calendar.
type WorkdayChecker struct {
	status func() workday.Status
}

// NewWorkdayChecker creates a checker for o.
func NewWorkdayChecker(o *workday.Oracle) *WorkdayChecker {
	return &WorkdayChecker{status: o.Status}
}

func (c *WorkdayChecker) Name() string { return "workday_calendar" }

func (c *WorkdayChecker) Check(_ context.Context) CheckResult {
	st := c.status()
	if st.Degraded {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "calendar unavailable, workdays-only recordings are not started",
			Error:   st.LastError,
		}
	}
	return CheckResult{Status: StatusHealthy, Message: st.Source}
}

// RecoveryChecker reports on the last recovery sweep.
type RecoveryChecker struct {
	status func() recovery.Status
}

// NewRecoveryChecker creates a checker for s.
func NewRecoveryChecker(s *recovery.Service) *RecoveryChecker {
	return &RecoveryChecker{status: s.Status}
}

func (c *RecoveryChecker) Name() string { return "recovery" }

func (c *RecoveryChecker) Check(_ context.Context) CheckResult {
	st := c.status()
	switch {
	case !st.Enabled:
		return CheckResult{Status: StatusHealthy, Message: "disabled"}
	case st.Running:
		return CheckResult{Status: StatusHealthy, Message: "sweep running"}
	case st.LastReport == nil:
		return CheckResult{Status: StatusHealthy, Message: "no sweep yet"}
	case st.LastReport.Failed > 0:
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last sweep left %d files unrepaired", st.LastReport.Failed),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "last sweep clean"}
}
