// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/yoyostream/transcoderd/internal/config"
	"github.com/yoyostream/transcoderd/internal/daemon"
	"github.com/yoyostream/transcoderd/internal/health"
	xglog "github.com/yoyostream/transcoderd/internal/log"
	"github.com/yoyostream/transcoderd/internal/version"
)

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}

// resolveDefaultConfigPath returns ${VPS_DATA_DIR}/config.yaml when it exists.
func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(config.ParseString("VPS_DATA_DIR", config.Defaults().DataDir))
	if dataDir == "" {
		return ""
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "transcoderd",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	explicitConfigPath := strings.TrimSpace(*configPath)
	effectiveConfigPath := explicitConfigPath
	if effectiveConfigPath == "" {
		effectiveConfigPath = resolveDefaultConfigPath()
	}

	loader := config.NewLoader(effectiveConfigPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "transcoderd",
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")

	switch {
	case explicitConfigPath != "":
		logger.Info().Str(xglog.FieldEvent, "config.loaded").Str("source", "file").Str("path", explicitConfigPath).Msg("loaded configuration from file")
	case effectiveConfigPath != "":
		logger.Info().Str(xglog.FieldEvent, "config.loaded").Str("source", "file(auto)").Str("path", effectiveConfigPath).Msg("loaded configuration from file")
	default:
		logger.Info().Str(xglog.FieldEvent, "config.loaded").Str("source", "env+defaults").Msg("loaded configuration from environment and defaults")
	}

	if err := config.Validate(cfg); err != nil {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "config.invalid").Msg("configuration is invalid")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
	}

	logger.Info().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("config_service", maskURL(cfg.ConfigService.BaseURL)).
		Str("session_manager", maskURL(cfg.SessionManager.BaseURL)).
		Str("listen", cfg.API.ListenAddr).
		Msg("starting transcoderd")

	holder := config.NewConfigHolder(cfg, loader)
	app, err := daemon.Bootstrap(ctx, cfg, holder)
	if err != nil {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "bootstrap.failed").Msg("failed to initialize daemon")
	}

	if err := app.Run(ctx); err != nil {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "daemon.failed").Msg("daemon exited with error")
	}
	logger.Info().Str(xglog.FieldEvent, "daemon.stopped").Msg("daemon stopped")
}
