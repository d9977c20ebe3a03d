// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package schedule runs daily time-window schedules per channel: a start
// trigger opens the window, a stop trigger closes it.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/yoyostream/transcoderd/internal/log"
	"github.com/yoyostream/transcoderd/internal/metrics"
	"github.com/yoyostream/transcoderd/internal/window"
)

// ErrInvalidConfig is returned by Schedule for configs with bad times.
var ErrInvalidConfig = errors.New("invalid schedule config")

const (
	defaultActionTimeout = 2 * time.Minute
	defaultMisfireGrace  = 5 * time.Minute
	defaultMaxSleep      = 60 * time.Second
)

// Options tunes a Scheduler.
type Options struct {
	Location      *time.Location
	Clock         Clock
	ActionTimeout time.Duration
	// MisfireGrace is how late a trigger may still fire. Later wake-ups
	// are logged as missed.
	MisfireGrace time.Duration
	// MaxSleep caps a single wait so clock steps and suspends are noticed.
	MaxSleep time.Duration
}

// Scheduler keeps one start and one stop trigger per channel.
type Scheduler struct {
	binding Binding
	opts    Options
	logger  zerolog.Logger

	reloadMu sync.Mutex // serializes Start/Reload

	mu           sync.Mutex
	running      bool
	generation   uint64
	tasks        map[string]*task
	configs      []Config
	lastReload   time.Time
	lastFetchErr error
	stats        DispatchStats

	triggers sync.WaitGroup
	actions  sync.WaitGroup
}

// New creates a scheduler for binding.
func New(binding Binding, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = defaultActionTimeout
	}
	if opts.MisfireGrace == 0 {
		opts.MisfireGrace = defaultMisfireGrace
	}
	if opts.MaxSleep <= 0 {
		opts.MaxSleep = defaultMaxSleep
	}
	return &Scheduler{
		binding: binding,
		opts:    opts,
		logger:  xglog.WithComponent("scheduler." + binding.Name),
		tasks:   make(map[string]*task),
	}
}

// Name returns the binding name.
func (s *Scheduler) Name() string { return s.binding.Name }

// Start fetches the schedule set, runs catch-up for open windows and
// registers the triggers. A failed fetch leaves the scheduler running
// with no tasks. Calling Start on a running scheduler reloads it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info().Str(xglog.FieldEvent, "schedule.starting").Msg("starting scheduler")
	return s.Reload(ctx)
}

// Reload replaces every task with the current schedule set. In-flight
// actions finish; only future firings of the old tasks are cancelled.
// Triggers are registered before catch-up runs, so a slow start action
// cannot delay another channel's stop.
func (s *Scheduler) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	s.mu.Lock()
	s.running = true
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.logger.Info().
		Str(xglog.FieldEvent, "schedule.reload_start").
		Msg("reloading schedules")

	configs, err := s.binding.Fetch(ctx)
	if err != nil {
		metrics.IncReload(s.binding.Name, "fetch_error")
		s.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "schedule.fetch_failed").
			Msg("failed to fetch schedule configs, running with none")
		configs = nil
	}

	valid := make([]Config, 0, len(configs))
	windows := make(map[string]window.Window, len(configs))
	for _, cfg := range configs {
		w, werr := cfg.Window()
		if werr != nil {
			s.logger.Warn().
				Err(werr).
				Str(xglog.FieldChannelID, cfg.ChannelID).
				Str(xglog.FieldStartTime, cfg.StartTime).
				Str(xglog.FieldEndTime, cfg.EndTime).
				Msg("skipping invalid schedule config")
			continue
		}
		valid = append(valid, cfg)
		windows[cfg.ChannelID] = w
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		metrics.IncReload(s.binding.Name, "superseded")
		return nil
	}
	// Triggers count from the reload instant; anything due while
	// catch-up runs fires late instead of rolling over to tomorrow.
	now := s.opts.Clock.Now()
	removed := s.teardownLocked()
	for _, cfg := range valid {
		s.registerLocked(cfg, windows[cfg.ChannelID], now)
	}
	s.configs = valid
	s.lastReload = now
	s.lastFetchErr = err
	scheduled := len(s.tasks)
	metrics.SetScheduledChannels(s.binding.Name, scheduled)
	s.mu.Unlock()
	if err == nil {
		metrics.IncReload(s.binding.Name, "success")
	}

	s.logger.Info().
		Int("removed", removed).
		Int("scheduled", scheduled).
		Int("fetched", len(configs)).
		Str(xglog.FieldEvent, "schedule.reload_done").
		Msg("schedules registered")

	var wg sync.WaitGroup
	for _, cfg := range valid {
		wg.Add(1)
		s.catchUp(ctx, gen, now, cfg, windows[cfg.ChannelID], wg.Done)
	}
	wg.Wait()
	return nil
}

// catchUp starts cfg in its own goroutine when its window was open at
// the reload instant and still is. A window opening after reloadAt belongs
// to the start trigger.
func (s *Scheduler) catchUp(ctx context.Context, gen uint64, reloadAt time.Time, cfg Config, w window.Window, done func()) {
	s.actions.Add(1)
	go func() {
		defer s.actions.Done()
		defer done()
		if s.superseded(gen) || !w.ContainsTime(reloadAt, s.opts.Location) {
			return
		}
		if !s.shouldEnter(ctx, cfg, w, s.opts.Clock.Now()) {
			return
		}
		s.logger.Info().
			Str(xglog.FieldChannelID, cfg.ChannelID).
			Str(xglog.FieldEvent, "schedule.catch_up").
			Msg("window already open, starting immediately")
		_ = s.runAction(context.WithoutCancel(ctx), actionStart, cfg, s.binding.OnEnter)
	}()
}

func (s *Scheduler) superseded(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation != gen
}

// Stop cancels every future firing. Dispatched actions keep running; use
// Wait to block until they finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.generation++
	n := s.teardownLocked()
	s.configs = nil
	metrics.SetScheduledChannels(s.binding.Name, 0)
	s.logger.Info().Int("removed", n).Str(xglog.FieldEvent, "schedule.stopped").Msg("scheduler stopped")
}

// Wait blocks until all trigger goroutines and dispatched actions exit,
// or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.triggers.Wait()
		s.actions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule registers or replaces the task of one channel.
func (s *Scheduler) Schedule(cfg Config) error {
	w, err := cfg.Window()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerLocked(cfg, w, s.opts.Clock.Now())
	s.upsertConfigLocked(cfg)
	metrics.SetScheduledChannels(s.binding.Name, len(s.tasks))
	return nil
}

// Unschedule removes the task of one channel. It reports whether one existed.
func (s *Scheduler) Unschedule(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[channelID]
	if !ok {
		return false
	}
	t.cancel()
	delete(s.tasks, channelID)
	for i, c := range s.configs {
		if c.ChannelID == channelID {
			s.configs = append(s.configs[:i:i], s.configs[i+1:]...)
			break
		}
	}
	metrics.SetScheduledChannels(s.binding.Name, len(s.tasks))
	s.logger.Info().Str(xglog.FieldChannelID, channelID).Msg("unscheduled channel")
	return true
}

// Configs returns a copy of the active schedule set.
func (s *Scheduler) Configs() []Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Config, len(s.configs))
	copy(out, s.configs)
	return out
}

func (s *Scheduler) upsertConfigLocked(cfg Config) {
	for i, c := range s.configs {
		if c.ChannelID == cfg.ChannelID {
			s.configs[i] = cfg
			return
		}
	}
	s.configs = append(s.configs, cfg)
}

// teardownLocked cancels all tasks. Caller must hold s.mu.
func (s *Scheduler) teardownLocked() int {
	n := len(s.tasks)
	for id, t := range s.tasks {
		t.cancel()
		delete(s.tasks, id)
	}
	return n
}

// registerLocked starts the triggers of one channel, retiring a previous
// task for the same channel. The first firings are the ones after ref.
// Caller must hold s.mu.
func (s *Scheduler) registerLocked(cfg Config, w window.Window, ref time.Time) {
	if old, ok := s.tasks[cfg.ChannelID]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cfg: cfg, window: w, cancel: cancel, ref: ref}
	s.tasks[cfg.ChannelID] = t

	s.triggers.Add(1)
	go s.runTrigger(ctx, t, triggerStart, w.Start)
	// A full-day window is always on and has no stop trigger.
	if !w.FullDay() {
		s.triggers.Add(1)
		go s.runTrigger(ctx, t, triggerStop, w.End)
	}

	s.logger.Debug().
		Str(xglog.FieldChannelID, cfg.ChannelID).
		Str("start_cron", w.Start.CronExpr()).
		Str("stop_cron", w.End.CronExpr()).
		Str(xglog.FieldTimezone, s.opts.Location.String()).
		Msg("scheduled channel")
}

// shouldEnter is the single decision used by catch-up and the start trigger.
func (s *Scheduler) shouldEnter(ctx context.Context, cfg Config, w window.Window, now time.Time) bool {
	if !w.ContainsTime(now, s.opts.Location) {
		return false
	}
	if s.binding.Gate != nil && !s.binding.Gate(ctx, cfg, now.In(s.opts.Location)) {
		s.logger.Info().
			Str(xglog.FieldChannelID, cfg.ChannelID).
			Str(xglog.FieldEvent, "schedule.gate_skip").
			Msg("start skipped by gate")
		return false
	}
	return true
}
