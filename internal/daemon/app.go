// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yoyostream/transcoderd/internal/config"
	xglog "github.com/yoyostream/transcoderd/internal/log"
)

// Scheduler is the lifecycle surface of schedule.Scheduler.
type Scheduler interface {
	Name() string
	Start(ctx context.Context) error
	Reload(ctx context.Context) error
	Stop()
	Wait(ctx context.Context) error
}

// ConfigApplier receives every successfully reloaded configuration.
type ConfigApplier func(ctx context.Context, cfg config.AppConfig)

// App owns the long-lived runtime lifecycle (schedulers, watchers, reload
// wiring) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.ConfigHolder
	schedulers   []Scheduler
	appliers     []ConfigApplier
	onStart      []func(ctx context.Context)
	reloadSignal os.Signal
	drainTimeout time.Duration
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.ConfigHolder, schedulers ...Scheduler) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		schedulers:   schedulers,
		reloadSignal: syscall.SIGHUP,
		drainTimeout: 30 * time.Second,
	}
}

// OnConfigReload registers fn to run after each config reload, before the
// schedulers reload.
func (a *App) OnConfigReload(fn ConfigApplier) { a.appliers = append(a.appliers, fn) }

// OnStart registers fn to run once the schedulers are started.
func (a *App) OnStart(fn func(ctx context.Context)) { a.onStart = append(a.onStart, fn) }

// Run starts all owned background subsystems and blocks until ctx is
// cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, s := range a.schedulers {
		// Start never fails on fetch errors; the scheduler runs empty.
		if err := s.Start(ctx); err != nil {
			a.logger.Error().Err(err).Str("scheduler", s.Name()).Msg("scheduler start failed")
		}
	}
	a.manager.RegisterShutdownHook("schedulers", a.stopSchedulers)

	for _, fn := range a.onStart {
		fn(ctx)
	}

	// Config watcher is best-effort: startup should not fail if watcher cannot be started.
	if a.cfgHolder != nil {
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}

		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.applyConfig(ctx, cfg)
				}
			}
		})
	}

	// SIGHUP trigger for manual reload.
	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(xglog.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.cfgHolder.Reload(ctx); err != nil {
						a.logger.Warn().
							Err(err).
							Str(xglog.FieldEvent, "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	// Main server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

// applyConfig pushes a reloaded config to the registered appliers, then
// reloads every scheduler so the new schedule set takes effect.
func (a *App) applyConfig(ctx context.Context, cfg config.AppConfig) {
	for _, fn := range a.appliers {
		fn(ctx, cfg)
	}
	for _, s := range a.schedulers {
		if err := s.Reload(ctx); err != nil {
			a.logger.Error().Err(err).Str("scheduler", s.Name()).Msg("scheduler reload failed")
		}
	}
	a.logger.Info().
		Int("schedulers", len(a.schedulers)).
		Str(xglog.FieldEvent, "config.applied").
		Msg("configuration applied")
}

func (a *App) stopSchedulers(ctx context.Context) error {
	for _, s := range a.schedulers {
		s.Stop()
	}
	ctx, cancel := context.WithTimeout(ctx, a.drainTimeout)
	defer cancel()
	for _, s := range a.schedulers {
		if err := s.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
