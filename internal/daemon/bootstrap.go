// SPDX-License-Identifier: MIT

// Package daemon wires the daemon's components together and manages their
// lifecycle: HTTP servers, schedulers, recovery and config reloads.
package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/yoyostream/transcoderd/internal/api"
	"github.com/yoyostream/transcoderd/internal/cache"
	"github.com/yoyostream/transcoderd/internal/config"
	"github.com/yoyostream/transcoderd/internal/configsvc"
	"github.com/yoyostream/transcoderd/internal/health"
	"github.com/yoyostream/transcoderd/internal/history"
	xglog "github.com/yoyostream/transcoderd/internal/log"
	"github.com/yoyostream/transcoderd/internal/media/ffmpeg"
	"github.com/yoyostream/transcoderd/internal/recovery"
	"github.com/yoyostream/transcoderd/internal/resilience"
	"github.com/yoyostream/transcoderd/internal/schedule"
	"github.com/yoyostream/transcoderd/internal/session"
	"github.com/yoyostream/transcoderd/internal/telemetry"
	"github.com/yoyostream/transcoderd/internal/workday"
)

const (
	breakerThreshold = 5
	breakerReset     = 30 * time.Second
)

// Bootstrap builds every component from cfg and returns the App that runs
// them. Only unusable configuration is an error; unreachable collaborators
// are tolerated and surface through health checks.
func Bootstrap(ctx context.Context, cfg config.AppConfig, holder *config.ConfigHolder) (*App, error) {
	logger := xglog.WithComponent("daemon")

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var hooks []namedHook
	addHook := func(name string, fn ShutdownHook) { hooks = append(hooks, namedHook{name: name, hook: fn}) }

	// Telemetry first so its shutdown hook runs last.
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "transcoderd",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry initialization failed, continuing without tracing")
	} else {
		addHook("telemetry", tp.Shutdown)
	}

	hm := health.NewManager(cfg.Version)

	sharedCache, err := buildCache(cfg.Cache, hm, addHook)
	if err != nil {
		return nil, err
	}

	cfgClient := configsvc.New(configsvc.Options{
		BaseURL:    cfg.ConfigService.BaseURL,
		APIKey:     cfg.ConfigService.APIKey,
		HTTPClient: telemetry.NewHTTPClient(cfg.ConfigService.Timeout),
		RateLimit:  cfg.ConfigService.RateLimit,
		RateBurst:  cfg.ConfigService.RateBurst,
		Breaker:    resilience.NewCircuitBreaker("configsvc", breakerThreshold, breakerReset),
		Cache:      sharedCache,
		CacheTTL:   cfg.ConfigService.CacheTTL,
	})

	sessions := session.NewHTTPManager(cfg.SessionManager.BaseURL,
		session.WithHTTPClient(telemetry.NewHTTPClient(cfg.SessionManager.Timeout)),
		session.WithAPIKey(cfg.SessionManager.APIKey),
	)

	oracle := workday.NewOracle(workday.Options{
		Source:       workday.NewHTTPSource(cfg.Workday.CalendarURL, telemetry.NewHTTPClient(10*time.Second)),
		Cache:        sharedCache,
		CacheTTL:     cfg.Workday.CacheTTL,
		SnapshotDir:  filepath.Join(cfg.DataDir, "workday"),
		Location:     loc,
		Breaker:      resilience.NewCircuitBreaker("workday", breakerThreshold, breakerReset),
		WeekdaysOnly: !cfg.Workday.Enabled,
	})
	if err := oracle.Initialize(ctx); err != nil {
		logger.Warn().Err(err).Msg("workday calendar not loaded, workdays-only schedules will not start")
	}
	hm.RegisterChecker(health.NewWorkdayChecker(oracle))

	schedOpts := schedule.Options{
		Location:      loc,
		ActionTimeout: cfg.Scheduler.ActionTimeout,
		MisfireGrace:  cfg.Scheduler.MisfireGrace,
	}
	preload := schedule.New(schedule.PreloadBinding(cfgClient, sessions), schedOpts)
	record := schedule.New(schedule.RecordBinding(cfgClient, sessions, oracle), schedOpts)
	hm.RegisterChecker(health.NewSchedulerChecker(preload))
	hm.RegisterChecker(health.NewSchedulerChecker(record))

	var (
		sink  recovery.ReportSink
		store *history.Store
	)
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.DBPath, cfg.History.Retain)
		if err != nil {
			return nil, fmt.Errorf("open sweep history: %w", err)
		}
		sink = store
		addHook("history", func(context.Context) error { return store.Close() })
		hm.RegisterChecker(health.NewPingChecker("history", false, store.Check))
	}

	fs := afero.NewOsFs()
	rc := cfg.Recovery
	svc := recovery.New(recovery.Options{
		Enabled:          rc.Enabled,
		RecordingsPath:   rc.RecordingsPath,
		StartupDelay:     rc.StartupDelay,
		ScanRecentHours:  rc.ScanRecentHours,
		ScanDateDirs:     rc.ScanDateDirs,
		ConfirmDelay:     rc.ConfirmDelay,
		ProtectionPeriod: rc.ProtectionPeriod,
		EndTimeTolerance: rc.EndTimeTolerance,
		Location:         loc,
	}, recovery.Deps{
		Fs:       fs,
		Prober:   ffmpeg.NewProber(config.ResolveFFprobeBin(rc.FFprobeBin, rc.FFmpegBin), rc.ProbeTimeout),
		Repairer: ffmpeg.NewRemuxer(rc.FFmpegBin, rc.RepairTimeout, fs),
		Sessions: sessions,
		Configs:  record,
		Sink:     sink,
	})
	hm.RegisterChecker(health.NewRecoveryChecker(svc))

	apiDeps := api.Deps{
		Schedulers: []api.Scheduler{preload, record},
		Recovery:   svc,
		Workday:    oracle,
		Probes:     hm,
		Location:   loc,
		Version:    cfg.Version,
	}
	if store != nil {
		apiDeps.History = store
	}
	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = "transcoderd"
	}
	apiServer := api.New(apiConfig(cfg, tracing), apiDeps)

	deps := Deps{
		Logger:     logger,
		APIHandler: apiServer.Handler(),
	}
	if cfg.Metrics.Enabled {
		deps.MetricsHandler = promhttp.Handler()
		deps.MetricsAddr = cfg.Metrics.ListenAddr
	}
	mgr, err := NewManager(DefaultServerConfig(cfg.API.ListenAddr), deps)
	if err != nil {
		return nil, err
	}
	for _, h := range hooks {
		mgr.RegisterShutdownHook(h.name, h.hook)
	}
	mgr.RegisterShutdownHook("recovery", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			svc.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	app := NewApp(logger, mgr, holder, preload, record)
	app.OnStart(svc.Startup)
	app.OnConfigReload(func(_ context.Context, next config.AppConfig) {
		xglog.Configure(xglog.Config{Level: next.LogLevel, Service: "transcoderd", Version: next.Version})
		apiServer.UpdateConfig(apiConfig(next, tracing))
		cfgClient.InvalidateChannels()
		oracle.Invalidate()
	})

	logger.Info().
		Str(xglog.FieldTimezone, loc.String()).
		Str("config_service", cfg.ConfigService.BaseURL).
		Str("session_manager", cfg.SessionManager.BaseURL).
		Bool("recovery", rc.Enabled).
		Bool("history", cfg.History.Enabled).
		Str("cache", cfg.Cache.Backend).
		Msg("daemon components wired")
	if cfg.API.Token == "" {
		logger.Warn().Msg("API token not configured, admin API is unauthenticated")
	}
	return app, nil
}

func apiConfig(cfg config.AppConfig, tracing string) api.Config {
	return api.Config{
		Token:          cfg.API.Token,
		RateLimit:      cfg.API.RateLimit,
		TracingService: tracing,
	}
}

// buildCache returns the shared cache for channel lists and calendars.
// An unreachable Redis falls back to memory rather than failing startup.
func buildCache(cc config.CacheConfig, hm *health.Manager, addHook func(string, ShutdownHook)) (cache.Cache, error) {
	logger := xglog.WithComponent("cache")
	if cc.Backend == "redis" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cc.RedisAddr,
			Password: cc.RedisPassword,
			DB:       cc.RedisDB,
			Prefix:   cc.RedisPrefix,
		}, logger)
		if err == nil {
			addHook("redis", func(context.Context) error { return rc.Close() })
			hm.RegisterChecker(health.NewPingChecker("redis", false, rc.HealthCheck))
			registerCacheMetrics("redis", rc)
			return rc, nil
		}
		logger.Warn().Err(err).Str("addr", cc.RedisAddr).Msg("redis unavailable, using in-memory cache")
	} else if cc.Backend != "" && cc.Backend != "memory" {
		return nil, fmt.Errorf("unknown cache backend %q", cc.Backend)
	}
	mc := cache.NewMemoryCache(time.Minute)
	addHook("cache", func(context.Context) error {
		mc.Stop()
		return nil
	})
	registerCacheMetrics("memory", mc)
	return mc, nil
}

func registerCacheMetrics(backend string, c cache.Cache) {
	if err := cache.Register(prometheus.DefaultRegisterer, backend, c); err != nil {
		logger := xglog.WithComponent("cache")
		logger.Warn().Err(err).Msg("cache metrics not registered")
	}
}
