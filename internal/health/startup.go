// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/yoyostream/transcoderd/internal/config"
	xglog "github.com/yoyostream/transcoderd/internal/log"
)

// PerformStartupChecks validates the environment before the daemon starts.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := xglog.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkTargetedValidations(logger, cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	checkRecoveryTools(logger, cfg.Recovery)

	logger.Info().Msg("all startup checks passed")
	return ctx.Err()
}

func checkDataDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str(xglog.FieldPath, path).Msg("data directory is writable")
	return nil
}

func checkTargetedValidations(logger zerolog.Logger, cfg config.AppConfig) error {
	for name, addr := range map[string]string{"api": cfg.API.ListenAddr, "metrics": cfg.Metrics.ListenAddr} {
		if addr == "" || (name == "metrics" && !cfg.Metrics.Enabled) {
			continue
		}
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("invalid %s listen address %q: %w", name, addr, err)
		}
		if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
			return fmt.Errorf("invalid %s listen port %q in %q", name, port, addr)
		}
	}

	for name, raw := range map[string]string{
		"configService.baseUrl":  cfg.ConfigService.BaseURL,
		"sessionManager.baseUrl": cfg.SessionManager.BaseURL,
	} {
		if raw == "" {
			logger.Warn().Str("key", name).Msg("base URL not configured")
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%s scheme must be http or https, got: %s", name, u.Scheme)
		}
	}
	return nil
}

// checkRecoveryTools only warns: scheduling works without the media tools.
func checkRecoveryTools(logger zerolog.Logger, cfg config.RecoveryConfig) {
	if !cfg.Enabled {
		return
	}
	for _, bin := range []string{cfg.FFmpegBin, cfg.FFprobeBin} {
		if bin == "" {
			continue
		}
		if _, err := exec.LookPath(bin); err != nil {
			logger.Warn().Err(err).Str("binary", bin).Msg("media tool not found, recovery repairs will fail")
		}
	}
	if info, err := os.Stat(cfg.RecordingsPath); err != nil || !info.IsDir() {
		logger.Warn().Str(xglog.FieldPath, cfg.RecordingsPath).Msg("recordings path missing, recovery will find nothing")
	}
}
