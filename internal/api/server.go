// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the daemon's admin surface: health probes, scheduler
// and recovery status, schedule reloads and manual recovery sweeps.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yoyostream/transcoderd/internal/api/middleware"
	"github.com/yoyostream/transcoderd/internal/recovery"
	"github.com/yoyostream/transcoderd/internal/schedule"
	"github.com/yoyostream/transcoderd/internal/workday"
)

// Scheduler is the part of schedule.Scheduler the API drives.
type Scheduler interface {
	Name() string
	Status() schedule.Status
	Reload(ctx context.Context) error
}

// Recovery is the part of recovery.Service the API drives.
type Recovery interface {
	Status() recovery.Status
	RunImmediate(ctx context.Context) (recovery.Report, error)
	RunWithSizeCheck(ctx context.Context) (recovery.Report, error)
}

// History lists past sweep reports, newest first.
type History interface {
	List(ctx context.Context, limit int) ([]recovery.Report, error)
}

// Workday answers calendar queries.
type Workday interface {
	IsWorkday(ctx context.Context, t time.Time) bool
	Status() workday.Status
}

// Probes serves liveness and readiness.
type Probes interface {
	ServeHealth(w http.ResponseWriter, r *http.Request)
	ServeReady(w http.ResponseWriter, r *http.Request)
}

// Config holds the reloadable API settings.
type Config struct {
	Token          string
	RateLimit      int // mutating requests per minute and IP
	TracingService string
}

// Deps are the components behind the routes. Recovery, History and
// Workday may be nil; their routes then answer 503.
type Deps struct {
	Schedulers []Scheduler
	Recovery   Recovery
	History    History
	Workday    Workday
	Probes     Probes
	Location   *time.Location
	Version    string
}

// Server is the admin HTTP handler.
type Server struct {
	mu   sync.RWMutex
	cfg  Config
	deps Deps

	schedulers map[string]Scheduler
	started    time.Time
	router     chi.Router
}

// New builds the router.
func New(cfg Config, deps Deps) *Server {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	s := &Server{
		cfg:        cfg,
		deps:       deps,
		schedulers: make(map[string]Scheduler, len(deps.Schedulers)),
		started:    time.Now(),
	}
	for _, sc := range deps.Schedulers {
		s.schedulers[sc.Name()] = sc
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// UpdateConfig swaps the token after a config reload. Rate limit and
// tracing settings apply on restart only.
func (s *Server) UpdateConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Token = cfg.Token
}

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
	})

	if s.deps.Probes != nil {
		r.Get("/healthz", s.deps.Probes.ServeHealth)
		r.Get("/readyz", s.deps.Probes.ServeReady)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/status", s.handleStatus)
		r.Get("/scheduler/{name}/status", s.handleSchedulerStatus)
		r.Get("/recovery/status", s.handleRecoveryStatus)
		r.Get("/recovery/history", s.handleRecoveryHistory)
		r.Get("/workday", s.handleWorkday)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MutationRateLimit(s.cfg.RateLimit))
			r.Post("/scheduler/{name}/reload", s.handleSchedulerReload)
			r.Post("/recovery/run", s.handleRecoveryRun)
		})
	})
	return r
}
