package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	xglog "github.com/yoyostream/transcoderd/internal/log"
	"github.com/yoyostream/transcoderd/internal/metrics"
	"github.com/yoyostream/transcoderd/internal/telemetry"
)

type actionFunc func(ctx context.Context, cfg Config) error

var tracer = telemetry.Tracer("github.com/yoyostream/transcoderd/internal/schedule")

// dispatch runs fn detached from the trigger: cancelling the task does
// not abort an action that already started.
func (s *Scheduler) dispatch(ctx context.Context, action string, cfg Config, fn actionFunc) {
	s.actions.Add(1)
	go func() {
		defer s.actions.Done()
		_ = s.runAction(context.WithoutCancel(ctx), action, cfg, fn)
	}()
}

// runAction invokes fn with the action timeout. Errors and panics are
// logged and counted, never propagated to the trigger.
func (s *Scheduler) runAction(parent context.Context, action string, cfg Config, fn actionFunc) (err error) {
	if fn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(parent, s.opts.ActionTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "schedule."+action,
		trace.WithAttributes(telemetry.ScheduleAttributes(s.binding.Name, cfg.ChannelID, action)...))
	defer span.End()

	logger := s.logger.With().
		Str(xglog.FieldChannelID, cfg.ChannelID).
		Str(xglog.FieldAction, action).
		Logger()

	started := time.Now()
	result := "success"
	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			err = fmt.Errorf("action %s panicked: %v", action, r)
			logger.Error().
				Str("stack", string(debug.Stack())).
				Str(xglog.FieldEvent, "schedule.action_panic").
				Msg(err.Error())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String(telemetry.ScheduleResultKey, result))
		metrics.ObserveAction(s.binding.Name, action, result, time.Since(started).Seconds())
		s.countResult(err == nil)
	}()

	if err = fn(ctx, cfg); err != nil {
		result = "error"
		logger.Error().
			Err(err).
			Dur(xglog.FieldDuration, time.Since(started)).
			Str(xglog.FieldEvent, "schedule.action_failed").
			Msg("scheduled action failed")
		return err
	}
	logger.Info().
		Dur(xglog.FieldDuration, time.Since(started)).
		Str(xglog.FieldEvent, "schedule.action_done").
		Msg("scheduled action completed")
	return nil
}
