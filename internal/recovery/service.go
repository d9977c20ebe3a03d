// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package recovery finds recordings left behind by interrupted or stalled
// sessions, repairs their container when needed and gives them their
// canonical name.
package recovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	xglog "github.com/yoyostream/transcoderd/internal/log"
	"github.com/yoyostream/transcoderd/internal/metrics"
	"github.com/yoyostream/transcoderd/internal/schedule"
	"github.com/yoyostream/transcoderd/internal/telemetry"
)

// ErrSweepRunning is returned when a sweep is requested while one runs.
var ErrSweepRunning = errors.New("recovery sweep already running")

// Mode names a sweep entry point.
type Mode string

const (
	ModeSizeCheck Mode = "size-check"
	ModeImmediate Mode = "immediate"
)

// Prober inspects recordings.
type Prober interface {
	Playable(ctx context.Context, path string) bool
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Repairer rewrites a recording in place, keeping its modification time.
type Repairer interface {
	Remux(ctx context.Context, path string) error
}

// RecordingState tells whether a channel is recording right now.
type RecordingState interface {
	IsRecording(ctx context.Context, channelID string) (bool, error)
}

// ConfigProvider lists the active record schedules.
type ConfigProvider interface {
	Configs() []schedule.Config
}

// ReportSink persists sweep reports.
type ReportSink interface {
	SaveReport(ctx context.Context, r Report) error
}

// Options configures the service.
type Options struct {
	Enabled          bool
	RecordingsPath   string
	StartupDelay     time.Duration
	ScanRecentHours  int
	ScanDateDirs     int
	ConfirmDelay     time.Duration
	ProtectionPeriod time.Duration
	EndTimeTolerance time.Duration
	Location         *time.Location
}

// Deps are the collaborators of the service. Sessions, Configs and Sink
// may be nil.
type Deps struct {
	Fs       afero.Fs
	Prober   Prober
	Repairer Repairer
	Sessions RecordingState
	Configs  ConfigProvider
	Sink     ReportSink
}

// Service runs recovery sweeps, one at a time.
type Service struct {
	opts     Options
	fs       afero.Fs
	prober   Prober
	repairer Repairer
	sessions RecordingState
	configs  ConfigProvider
	sink     ReportSink

	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	running atomic.Bool
	bg      sync.WaitGroup

	mu      sync.Mutex
	mode    Mode
	last    *Report
	started time.Time
}

// New creates a recovery service.
func New(opts Options, deps Deps) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.ScanDateDirs <= 0 {
		opts.ScanDateDirs = 3
	}
	if opts.ScanRecentHours <= 0 {
		opts.ScanRecentHours = 48
	}
	if opts.ConfirmDelay <= 0 {
		opts.ConfirmDelay = 30 * time.Second
	}
	if opts.ProtectionPeriod <= 0 {
		opts.ProtectionPeriod = 30 * time.Second
	}
	if opts.EndTimeTolerance <= 0 {
		opts.EndTimeTolerance = 300 * time.Second
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	return &Service{
		opts:     opts,
		fs:       deps.Fs,
		prober:   deps.Prober,
		repairer: deps.Repairer,
		sessions: deps.Sessions,
		configs:  deps.Configs,
		sink:     deps.Sink,
		logger:   xglog.WithComponent("recovery"),
		tracer:   telemetry.Tracer("github.com/yoyostream/transcoderd/internal/recovery"),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Startup schedules a size-check sweep after StartupDelay. It returns
// immediately; the sweep stops early when ctx is cancelled.
func (s *Service) Startup(ctx context.Context) {
	if !s.opts.Enabled {
		s.logger.Warn().Msg("recovery disabled, skipping startup sweep")
		return
	}
	s.logger.Info().
		Dur("delay", s.opts.StartupDelay).
		Int("scan_recent_hours", s.opts.ScanRecentHours).
		Str(xglog.FieldPath, s.opts.RecordingsPath).
		Msg("startup recovery sweep scheduled")

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if err := s.sleep(ctx, s.opts.StartupDelay); err != nil {
			return
		}
		if _, err := s.RunWithSizeCheck(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("startup recovery sweep failed")
		}
	}()
}

// Wait blocks until a pending Startup sweep has finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

// RunWithSizeCheck repairs temp files that stopped growing: sizes are
// recorded, and files whose size is unchanged after ConfirmDelay are
// treated as stalled.
func (s *Service) RunWithSizeCheck(ctx context.Context) (Report, error) {
	return s.sweep(ctx, ModeSizeCheck, s.collectStalled)
}

// RunImmediate repairs temp files older than ProtectionPeriod whose
// channel is not recording, and fixes finalized files whose end stamp is
// the scheduled end time but whose duration disagrees with it.
func (s *Service) RunImmediate(ctx context.Context) (Report, error) {
	return s.sweep(ctx, ModeImmediate, s.collectImmediate)
}

type collector func(ctx context.Context, r *Report) ([]Artifact, error)

func (s *Service) sweep(ctx context.Context, mode Mode, collect collector) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.IncSweepOutcome(string(mode), "rejected")
		return Report{}, ErrSweepRunning
	}
	defer s.running.Store(false)

	r := Report{ID: uuid.NewString(), Mode: mode, StartedAt: s.now()}
	s.mu.Lock()
	s.mode = mode
	s.started = r.StartedAt
	s.mu.Unlock()
	metrics.SetSweepRunning(true)
	defer metrics.SetSweepRunning(false)

	ctx = xglog.ContextWithSweepID(ctx, r.ID)
	ctx, span := s.tracer.Start(ctx, "recovery.sweep", trace.WithAttributes(
		telemetry.SweepAttributes(r.ID, string(mode))...,
	))
	defer span.End()

	logger := xglog.WithContext(ctx, s.logger).With().Str(xglog.FieldMode, string(mode)).Logger()
	logger.Info().Str(xglog.FieldEvent, "recovery.sweep_started").Msg("recovery sweep started")

	queue, err := collect(ctx, &r)
	if err == nil {
		err = s.process(ctx, queue, &r)
	}
	r.Duration = s.now().Sub(r.StartedAt)
	if err != nil {
		r.Cancelled = true
		r.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.IncSweepOutcome(string(mode), "cancelled")
	} else {
		metrics.ObserveSweep(string(mode), r.counts(), r.Duration.Seconds())
	}
	span.SetAttributes(telemetry.SweepResultAttributes(r.Scanned, r.Fixed, r.Renamed, r.Repaired, r.Failed)...)

	logger.Info().
		Int("scanned", r.Scanned).
		Int("fixed", r.Fixed).
		Int("renamed", r.Renamed).
		Int("repaired", r.Repaired).
		Int("end_time_fixed", r.EndTimeFixed).
		Int("collisions", r.Collisions).
		Int("failed", r.Failed).
		Dur(xglog.FieldDuration, r.Duration).
		Bool("cancelled", r.Cancelled).
		Str(xglog.FieldEvent, "recovery.sweep_completed").
		Msg("recovery sweep completed")

	s.mu.Lock()
	last := r
	s.last = &last
	s.mu.Unlock()

	if s.sink != nil {
		if serr := s.sink.SaveReport(context.WithoutCancel(ctx), r); serr != nil {
			logger.Warn().Err(serr).Msg("failed to persist sweep report")
		}
	}
	return r, err
}

// collectStalled implements the size-growth policy.
func (s *Service) collectStalled(ctx context.Context, r *Report) ([]Artifact, error) {
	logger := xglog.WithContext(ctx, s.logger)
	cutoff := s.cutoff()

	var found []Artifact
	for _, ch := range s.channels(ctx) {
		for _, a := range s.scan(ch, cutoff, isTempName) {
			a.Kind = KindTemp
			found = append(found, a)
		}
	}
	r.Scanned = len(found)
	if len(found) == 0 {
		logger.Info().Msg("no temp files found")
		return nil, nil
	}

	logger.Info().
		Int("files", len(found)).
		Dur("confirm_delay", s.opts.ConfirmDelay).
		Msg("waiting to see which temp files are still growing")
	if err := s.sleep(ctx, s.opts.ConfirmDelay); err != nil {
		return nil, err
	}

	var stalled []Artifact
	for _, a := range found {
		info, err := s.fs.Stat(a.Path)
		if err != nil {
			logger.Info().Err(err).Str(xglog.FieldPath, a.Path).Msg("temp file vanished, skipping")
			continue
		}
		if info.Size() != a.Size {
			a.State = StateGrowing
			logger.Info().
				Str(xglog.FieldPath, a.Path).
				Int64("before", a.Size).
				Int64("after", info.Size()).
				Msg("temp file still growing, leaving it alone")
			continue
		}
		a.State = StateStalled
		a.ModTime = info.ModTime()
		stalled = append(stalled, a)
	}
	r.Fixed = len(stalled)
	return stalled, nil
}

// collectImmediate implements the age plus not-recording policy, and the
// end-time check for finalized files.
func (s *Service) collectImmediate(ctx context.Context, r *Report) ([]Artifact, error) {
	logger := xglog.WithContext(ctx, s.logger)
	cutoff := s.cutoff()
	now := s.now()

	var queue []Artifact
	for _, ch := range s.channels(ctx) {
		recording, known := false, false
		for _, a := range s.scan(ch, cutoff, func(string) bool { return true }) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			name := baseName(a.Path)
			r.Scanned++

			if isTempName(name) {
				if age := now.Sub(a.ModTime); age < s.opts.ProtectionPeriod {
					logger.Info().Str(xglog.FieldPath, a.Path).Dur("age", age).Msg("temp file too recent, possibly recording")
					continue
				}
				if !known {
					recording, known = s.isRecording(ctx, ch.ID), true
				}
				if recording {
					logger.Warn().Str(xglog.FieldPath, a.Path).Msg("channel is recording, skipping temp file")
					continue
				}
				a.Kind = KindTemp
				a.State = StateStalled
				queue = append(queue, a)
				continue
			}

			if ch.Record != nil && s.wrongEndTime(ctx, a.Path, ch.Record) {
				a.Kind = KindWrongEndTime
				queue = append(queue, a)
			}
		}
	}
	r.Fixed = len(queue)
	return queue, nil
}

// isRecording asks the Session Manager. Unknown counts as recording.
func (s *Service) isRecording(ctx context.Context, channelID string) bool {
	if s.sessions == nil {
		return false
	}
	rec, err := s.sessions.IsRecording(ctx, channelID)
	if err != nil {
		logger := xglog.WithContext(ctx, s.logger)
		logger.Warn().
			Err(err).
			Str(xglog.FieldChannelID, channelID).
			Msg("cannot determine recording state, treating channel as active")
		return true
	}
	return rec
}

// Status is a snapshot for the admin API.
type Status struct {
	Enabled         bool    `json:"enabled"`
	Running         bool    `json:"running"`
	Mode            Mode    `json:"mode,omitempty"`
	RunningSince    string  `json:"runningSince,omitempty"`
	RecordingsPath  string  `json:"recordingsPath"`
	ScanRecentHours int     `json:"scanRecentHours"`
	ScanDateDirs    int     `json:"scanDateDirs"`
	LastReport      *Report `json:"lastReport,omitempty"`
}

// Status returns the current state of the service.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Enabled:         s.opts.Enabled,
		Running:         s.running.Load(),
		RecordingsPath:  s.opts.RecordingsPath,
		ScanRecentHours: s.opts.ScanRecentHours,
		ScanDateDirs:    s.opts.ScanDateDirs,
	}
	if st.Running {
		st.Mode = s.mode
		st.RunningSince = s.started.In(s.opts.Location).Format(time.RFC3339)
	}
	if s.last != nil {
		last := *s.last
		st.LastReport = &last
	}
	return st
}

// Running reports whether a sweep is in progress.
func (s *Service) Running() bool { return s.running.Load() }
