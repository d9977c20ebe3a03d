// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/yoyostream/transcoderd/internal/log"
)

// ShutdownHook releases a resource during graceful shutdown. Hooks run in
// reverse registration order after the HTTP listeners are closed.
type ShutdownHook func(ctx context.Context) error

// Manager owns the HTTP listeners of the daemon and the shutdown sequence.
type Manager interface {
	// Start binds every listener and serves until ctx is done or a
	// listener fails, then shuts down.
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	RegisterShutdownHook(name string, hook ShutdownHook)
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// boundServer is an HTTP server together with its bound listener.
type boundServer struct {
	name string
	srv  *http.Server
	ln   net.Listener
}

type manager struct {
	cfg    ServerConfig
	deps   Deps
	logger zerolog.Logger

	mu       sync.Mutex
	started  bool
	stopping bool
	servers  []boundServer
	hooks    []namedHook
}

// NewManager validates deps and returns a Manager for the admin API and,
// when deps carries one, the metrics listener.
func NewManager(cfg ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	return &manager{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With().Str(xglog.FieldComponent, "manager").Logger(),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	// Bind everything before serving so an occupied port fails startup
	// instead of surfacing later from a goroutine.
	if err := m.bind(); err != nil {
		m.logger.Error().Err(err).Str(xglog.FieldEvent, "server.bind_failed").Msg("cannot bind listener")
		return errors.Join(err, m.Shutdown(context.WithoutCancel(ctx)))
	}

	errCh := make(chan error, len(m.servers))
	for _, bs := range m.servers {
		go func(bs boundServer) {
			m.logger.Info().Str("server", bs.name).Str("addr", bs.ln.Addr().String()).Msg("listening")
			if err := bs.srv.Serve(bs.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.logger.Error().
					Err(err).
					Str("server", bs.name).
					Str(xglog.FieldEvent, "server.failed").
					Msg("server failed")
				errCh <- fmt.Errorf("%s server: %w", bs.name, err)
			}
		}(bs)
	}

	select {
	case err := <-errCh:
		return errors.Join(err, m.Shutdown(context.WithoutCancel(ctx)))
	case <-ctx.Done():
		m.logger.Info().Str(xglog.FieldEvent, "shutdown.requested").Msg("shutdown signal received")
		return m.Shutdown(context.WithoutCancel(ctx))
	}
}

func (m *manager) bind() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	add := func(name, addr string, srv *http.Server) error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen %s on %s: %w", name, addr, err)
		}
		m.servers = append(m.servers, boundServer{name: name, srv: srv, ln: ln})
		return nil
	}

	if err := add("api", m.cfg.ListenAddr, &http.Server{
		Handler:           m.deps.APIHandler,
		ReadTimeout:       m.cfg.ReadTimeout,
		ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
		WriteTimeout:      m.cfg.WriteTimeout,
		IdleTimeout:       m.cfg.IdleTimeout,
		MaxHeaderBytes:    m.cfg.MaxHeaderBytes,
	}); err != nil {
		return err
	}
	if m.deps.MetricsHandler != nil && m.deps.MetricsAddr != "" {
		return add("metrics", m.deps.MetricsAddr, &http.Server{
			Handler:           m.deps.MetricsHandler,
			ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
		})
	}
	return nil
}

// Shutdown closes the listeners, then runs the hooks newest first. All
// failures are joined into the returned error.
func (m *manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	servers := m.servers
	hooks := m.hooks
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	for _, bs := range servers {
		if err := bs.srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s server shutdown: %w", bs.name, err))
		}
		// Shutdown does not close a listener that never reached Serve.
		_ = bs.ln.Close()
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		err := h.hook(ctx)
		ev := m.logger.Debug()
		if err != nil {
			ev = m.logger.Error().Err(err)
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
		}
		ev.Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook finished")
	}

	if err := errors.Join(errs...); err != nil {
		m.logger.Error().Int("error_count", len(errs)).Msg("shutdown completed with errors")
		return fmt.Errorf("shutdown: %w", err)
	}
	m.logger.Info().Str(xglog.FieldEvent, "shutdown.done").Msg("servers stopped cleanly")
	return nil
}

func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}
