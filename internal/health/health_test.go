// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoyostream/transcoderd/internal/config"
	"github.com/yoyostream/transcoderd/internal/recovery"
	"github.com/yoyostream/transcoderd/internal/schedule"
	"github.com/yoyostream/transcoderd/internal/workday"
)

type mockChecker struct {
	name   string
	status Status
	delay  time.Duration
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return CheckResult{Status: StatusUnhealthy, Error: ctx.Err().Error()}
		}
	}
	return CheckResult{Status: m.status}
}

func TestManager_Health(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusDegraded, resp.Checks["degraded"].Status)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []Status
		wantReady bool
		want      Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, true, StatusHealthy},
		{"degraded is ready", []Status{StatusHealthy, StatusDegraded}, true, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1")
			for i, s := range tt.statuses {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestManager_SlowCheckerTimesOut(t *testing.T) {
	m := NewManager("v1")
	m.timeout = 50 * time.Millisecond
	m.RegisterChecker(&mockChecker{name: "slow", status: StatusHealthy, delay: time.Minute})

	start := time.Now()
	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestManager_ServeReady(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(&mockChecker{name: "db", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Ready)
	assert.Equal(t, StatusUnhealthy, body.Checks["db"].Status)

	rec = httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "liveness is always 200")
}

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker("redis", false, func(context.Context) error { return nil })
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	down := errors.New("connection refused")
	soft := NewPingChecker("redis", false, func(context.Context) error { return down })
	assert.Equal(t, StatusDegraded, soft.Check(context.Background()).Status)

	hard := NewPingChecker("history", true, func(context.Context) error { return down })
	res := hard.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "connection refused", res.Error)
}

func TestSchedulerChecker(t *testing.T) {
	c := &SchedulerChecker{name: "scheduler_record"}

	c.status = func() schedule.Status { return schedule.Status{} }
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)

	c.status = func() schedule.Status { return schedule.Status{IsRunning: true, LastFetchError: "timeout"} }
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)

	c.status = func() schedule.Status { return schedule.Status{IsRunning: true, TotalScheduled: 3} }
	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "3 channels scheduled", res.Message)
}

func TestWorkdayChecker(t *testing.T) {
	c := &WorkdayChecker{status: func() workday.Status { return workday.Status{Degraded: true, LastError: "404"} }}
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)

	c.status = func() workday.Status { return workday.Status{Source: "calendar"} }
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}

func TestRecoveryChecker(t *testing.T) {
	c := &RecoveryChecker{}
	c.status = func() recovery.Status {
		return recovery.Status{Enabled: true, LastReport: &recovery.Report{Failed: 2}}
	}
	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Message, "2 files")

	c.status = func() recovery.Status { return recovery.Status{Enabled: true} }
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}

func TestPerformStartupChecks(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.ConfigService.BaseURL = "http://config.local"
	cfg.Recovery.RecordingsPath = t.TempDir()
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	cfg.API.ListenAddr = "8090"
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))

	cfg.API.ListenAddr = ":8090"
	cfg.SessionManager.BaseURL = "ftp://sm"
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))
}
