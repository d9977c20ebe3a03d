package schedule

import (
	"context"
	"sync"
	"time"

	xglog "github.com/yoyostream/transcoderd/internal/log"
	"github.com/yoyostream/transcoderd/internal/metrics"
	"github.com/yoyostream/transcoderd/internal/window"
)

type triggerKind string

const (
	triggerStart triggerKind = "start"
	triggerStop  triggerKind = "stop"

	actionStart = "start"
	actionStop  = "stop"
)

// task is the registered pair of triggers of one channel.
type task struct {
	cfg    Config
	window window.Window
	cancel context.CancelFunc
	ref    time.Time

	mu        sync.Mutex
	nextStart time.Time
	nextStop  time.Time
}

func (t *task) setNext(kind triggerKind, next time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if kind == triggerStart {
		t.nextStart = next
	} else {
		t.nextStop = next
	}
}

func (t *task) next() (start, stop time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextStart, t.nextStop
}

// runTrigger fires at tod every day until ctx is cancelled.
func (s *Scheduler) runTrigger(ctx context.Context, t *task, kind triggerKind, tod window.TimeOfDay) {
	defer s.triggers.Done()

	logger := s.logger.With().
		Str(xglog.FieldChannelID, t.cfg.ChannelID).
		Str("trigger", string(kind)).
		Logger()

	ref := t.ref.In(s.opts.Location)
	for {
		next, err := tod.Next(ref)
		if err != nil {
			logger.Error().Err(err).Msg("cannot compute next firing, trigger disabled")
			return
		}
		t.setNext(kind, next)

		if !s.sleepUntil(ctx, next) {
			return
		}

		now := s.opts.Clock.Now().In(s.opts.Location)
		if late := now.Sub(next); s.opts.MisfireGrace > 0 && late > s.opts.MisfireGrace {
			metrics.IncTrigger(s.binding.Name, string(kind), "missed")
			s.countMissed()
			logger.Warn().
				Time("due", next).
				Dur("late", late).
				Str(xglog.FieldEvent, "schedule.trigger_missed").
				Msg("trigger woke up too late, skipping this firing")
		} else {
			s.fire(ctx, t, kind, now)
		}
		ref = now
	}
}

// sleepUntil waits until deadline in slices of at most MaxSleep, so a
// stepped or suspended clock is re-read regularly. It returns false when
// ctx is cancelled.
func (s *Scheduler) sleepUntil(ctx context.Context, deadline time.Time) bool {
	for {
		wait := deadline.Sub(s.opts.Clock.Now())
		if wait <= 0 {
			return ctx.Err() == nil
		}
		if wait > s.opts.MaxSleep {
			wait = s.opts.MaxSleep
		}
		timer := s.opts.Clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C():
		}
	}
}

// fire runs the trigger's action in its own goroutine.
func (s *Scheduler) fire(ctx context.Context, t *task, kind triggerKind, now time.Time) {
	cfg := t.cfg
	logger := s.logger.With().Str(xglog.FieldChannelID, cfg.ChannelID).Logger()

	switch kind {
	case triggerStart:
		if !s.shouldEnter(ctx, cfg, t.window, now) {
			metrics.IncTrigger(s.binding.Name, string(kind), "skipped")
			s.countSkipped()
			return
		}
		logger.Info().
			Str(xglog.FieldStartTime, cfg.StartTime).
			Str(xglog.FieldEvent, "schedule.trigger_fired").
			Msg("start trigger fired")
		metrics.IncTrigger(s.binding.Name, string(kind), "dispatched")
		s.dispatch(ctx, actionStart, cfg, s.binding.OnEnter)

	case triggerStop:
		logger.Info().
			Str(xglog.FieldEndTime, cfg.EndTime).
			Str(xglog.FieldEvent, "schedule.trigger_fired").
			Msg("stop trigger fired")
		metrics.IncTrigger(s.binding.Name, string(kind), "dispatched")
		s.dispatch(ctx, actionStop, cfg, s.binding.OnExit)
	}
}
