package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Scan window bounds for the recovery sweep, in hours.
const (
	MinScanHours = 12
	MaxScanHours = 168
)

// ClampScanHours keeps the recency window within [MinScanHours, MaxScanHours].
func ClampScanHours(h int) int {
	switch {
	case h < MinScanHours:
		return MinScanHours
	case h > MaxScanHours:
		return MaxScanHours
	default:
		return h
	}
}

// Validate checks the configuration for consistency. All problems are
// reported together.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := cfg.Location(); err != nil {
		errs = append(errs, err)
	}
	if cfg.DataDir == "" {
		add("dataDir must not be empty")
	}
	if strings.TrimSpace(cfg.ConfigService.BaseURL) == "" {
		add("configService.baseUrl is required")
	} else if err := validateURL(cfg.ConfigService.BaseURL); err != nil {
		add("configService.baseUrl: %v", err)
	}
	if err := validateURL(cfg.SessionManager.BaseURL); err != nil {
		add("sessionManager.baseUrl: %v", err)
	}
	if cfg.Workday.Enabled && !strings.Contains(cfg.Workday.CalendarURL, "{year}") {
		add("workday.calendarUrl must contain the {year} placeholder")
	}
	if cfg.ConfigService.Timeout <= 0 || cfg.SessionManager.Timeout <= 0 {
		add("client timeouts must be positive")
	}
	if cfg.ConfigService.RateLimit < 0 || cfg.ConfigService.RateBurst < 0 {
		add("configService rate limit must not be negative")
	}
	if cfg.Scheduler.ActionTimeout <= 0 {
		add("scheduler.actionTimeout must be positive")
	}
	if cfg.Scheduler.MisfireGrace < 0 {
		add("scheduler.misfireGrace must not be negative")
	}

	rc := cfg.Recovery
	if rc.Enabled {
		if rc.RecordingsPath == "" {
			add("recovery.recordingsPath is required when recovery is enabled")
		}
		if rc.ScanDateDirs < 1 {
			add("recovery.scanDateDirs must be at least 1")
		}
		if rc.ConfirmDelay <= 0 || rc.ProbeTimeout <= 0 || rc.RepairTimeout <= 0 {
			add("recovery timeouts must be positive")
		}
		if rc.StartupDelay < 0 || rc.ProtectionPeriod < 0 || rc.EndTimeTolerance < 0 {
			add("recovery delays must not be negative")
		}
	}

	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			add("cache.redisAddr is required for the redis backend")
		}
	default:
		add("cache.backend must be memory or redis, got %q", cfg.Cache.Backend)
	}

	if cfg.API.ListenAddr == "" {
		add("api.listenAddr must not be empty")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == "" {
		add("metrics.listenAddr must not be empty when metrics are enabled")
	}
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Exporter != "grpc" && cfg.Telemetry.Exporter != "http" {
			add("telemetry.exporter must be grpc or http, got %q", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			add("telemetry.samplingRate must be within [0,1]")
		}
	}
	if cfg.History.Enabled && cfg.History.Retain < 1 {
		add("history.retain must be at least 1")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
