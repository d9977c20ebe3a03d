// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package watchdog watches the -progress output of a running ffmpeg and
// reports when it never starts or stops advancing.
package watchdog

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	xglog "github.com/yoyostream/transcoderd/internal/log"
)

var (
	// ErrNoProgress means ffmpeg produced no output within the start timeout.
	ErrNoProgress = errors.New("ffmpeg made no progress")
	// ErrStalled means progress stopped advancing for the stall timeout.
	ErrStalled = errors.New("ffmpeg progress stalled")
)

type State int

const (
	StateStarting State = iota
	StateRunning
	StateStalled
	StateTimedOut
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStalled:
		return "stalled"
	case StateTimedOut:
		return "timed_out"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

type clock interface {
	Now() time.Time
	NewTicker(d time.Duration) ticker
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) ticker { return &realTicker{time.NewTicker(d)} }

type realTicker struct {
	*time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.Ticker.C }

// Watchdog enforces start and stall timeouts on one ffmpeg run.
type Watchdog struct {
	mu sync.Mutex

	startTimeout time.Duration
	stallTimeout time.Duration

	lastOutTime   int64
	lastTotalSize int64
	lastHeartbeat time.Time

	state     State
	completed chan struct{}
	once      sync.Once

	clock clock
}

// New creates a watchdog with the given timeouts.
func New(startTimeout, stallTimeout time.Duration) *Watchdog {
	w := &Watchdog{
		startTimeout: startTimeout,
		stallTimeout: stallTimeout,
		completed:    make(chan struct{}),
		clock:        realClock{},
	}
	w.lastHeartbeat = w.clock.Now()
	return w
}

// Run checks progress once per second. It returns nil when ffmpeg reports
// the end or ctx is done, ErrNoProgress or ErrStalled otherwise.
func (w *Watchdog) Run(ctx context.Context) error {
	w.mu.Lock()
	w.lastHeartbeat = w.clock.Now()
	w.mu.Unlock()

	tick := w.clock.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.completed:
			return nil
		case now := <-tick.C():
			if err := w.check(now); err != nil {
				return err
			}
		}
	}
}

// ParseLine consumes one "key=value" line of ffmpeg -progress output.
func (w *Watchdog) ParseLine(line string) {
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch key {
	// out_time_ms is in microseconds as well, kept for older ffmpeg builds.
	case "out_time_us", "out_time_ms":
		n, err := strconv.ParseInt(val, 10, 64)
		if err == nil && n > w.lastOutTime {
			w.lastOutTime = n
			w.heartbeatLocked()
		}
	case "total_size":
		n, err := strconv.ParseInt(val, 10, 64)
		if err == nil && n > w.lastTotalSize {
			w.lastTotalSize = n
			w.heartbeatLocked()
		}
	case "progress":
		if val == "end" {
			w.state = StateCompleted
			w.once.Do(func() { close(w.completed) })
		}
	}
}

func (w *Watchdog) heartbeatLocked() {
	w.lastHeartbeat = w.clock.Now()
	if w.state == StateStarting {
		w.state = StateRunning
		logger := xglog.WithComponent("watchdog")
		logger.Debug().Msg("ffmpeg progress detected")
	}
}

// check judges progress as of the tick time now.
func (w *Watchdog) check(now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := now.Sub(w.lastHeartbeat)
	switch w.state {
	case StateStarting:
		if elapsed > w.startTimeout {
			w.state = StateTimedOut
			return ErrNoProgress
		}
	case StateRunning:
		if elapsed > w.stallTimeout {
			w.state = StateStalled
			return ErrStalled
		}
	}
	return nil
}

// State returns the current state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
