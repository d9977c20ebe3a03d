// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "VPS_"

// Loader builds an AppConfig from defaults, file and environment.
type Loader struct {
	configPath string
	version    string

	// ConsumedEnvKeys records every environment key the loader looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader for the optional YAML file at configPath.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the watched configuration file (may be empty).
func (l *Loader) Path() string { return l.configPath }

// Load resolves the configuration: defaults, then file, then environment.
// The result is not validated.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	cfg.Recovery.FFprobeBin = ResolveFFprobeBin(cfg.Recovery.FFprobeBin, cfg.Recovery.FFmpegBin)
	if cfg.Recovery.FFprobeBin == "" {
		cfg.Recovery.FFprobeBin = "ffprobe"
	}
	if cfg.History.DBPath == "" {
		cfg.History.DBPath = filepath.Join(cfg.DataDir, "history.db")
	}
	cfg.Recovery.ScanRecentHours = ClampScanHours(cfg.Recovery.ScanRecentHours)
	cfg.Version = l.version

	return cfg, nil
}

// loadFile decodes the YAML file on top of cfg. Unknown keys are rejected.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return err
	}
	data = []byte(expandEnv(string(data)))

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseString(EnvPrefix+key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseBool(EnvPrefix+key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseInt(EnvPrefix+key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseFloat(EnvPrefix+key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseDuration(EnvPrefix+key, defaultVal)
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = strings.ToLower(l.envString("LOG_LEVEL", cfg.LogLevel))
	cfg.Timezone = l.envString("TIMEZONE", cfg.Timezone)

	cs := &cfg.ConfigService
	cs.BaseURL = l.envString("CONFIG_SERVICE_URL", cs.BaseURL)
	cs.APIKey = l.envString("API_KEY", cs.APIKey)
	cs.Timeout = l.envDuration("CONFIG_SERVICE_TIMEOUT", cs.Timeout)
	cs.CacheTTL = l.envDuration("CHANNEL_CACHE_TTL", cs.CacheTTL)
	cs.RateLimit = l.envFloat("CONFIG_SERVICE_RATE", cs.RateLimit)
	cs.RateBurst = l.envInt("CONFIG_SERVICE_BURST", cs.RateBurst)

	sm := &cfg.SessionManager
	sm.BaseURL = l.envString("SESSION_MANAGER_URL", sm.BaseURL)
	sm.APIKey = l.envString("SESSION_MANAGER_API_KEY", sm.APIKey)
	sm.Timeout = l.envDuration("SESSION_MANAGER_TIMEOUT", sm.Timeout)

	cfg.Scheduler.ActionTimeout = l.envDuration("ACTION_TIMEOUT", cfg.Scheduler.ActionTimeout)
	cfg.Scheduler.MisfireGrace = l.envDuration("MISFIRE_GRACE", cfg.Scheduler.MisfireGrace)

	cfg.Workday.Enabled = l.envBool("WORKDAY_ENABLED", cfg.Workday.Enabled)
	cfg.Workday.CalendarURL = l.envString("WORKDAY_CALENDAR_URL", cfg.Workday.CalendarURL)
	cfg.Workday.CacheTTL = l.envDuration("WORKDAY_CACHE_TTL", cfg.Workday.CacheTTL)

	rc := &cfg.Recovery
	rc.Enabled = l.envBool("RECOVERY_ENABLED", rc.Enabled)
	rc.RecordingsPath = l.envString("RECORDINGS_PATH", rc.RecordingsPath)
	rc.StartupDelay = l.envDuration("RECOVERY_STARTUP_DELAY", rc.StartupDelay)
	rc.ScanRecentHours = l.envInt("RECOVERY_SCAN_RECENT_HOURS", rc.ScanRecentHours)
	rc.ScanDateDirs = l.envInt("RECOVERY_SCAN_DATE_DIRS", rc.ScanDateDirs)
	rc.ConfirmDelay = l.envDuration("RECOVERY_CONFIRM_DELAY", rc.ConfirmDelay)
	rc.ProtectionPeriod = l.envDuration("RECOVERY_PROTECTION_PERIOD", rc.ProtectionPeriod)
	rc.ProbeTimeout = l.envDuration("RECOVERY_PROBE_TIMEOUT", rc.ProbeTimeout)
	rc.RepairTimeout = l.envDuration("RECOVERY_REPAIR_TIMEOUT", rc.RepairTimeout)
	rc.EndTimeTolerance = l.envDuration("RECOVERY_END_TIME_TOLERANCE", rc.EndTimeTolerance)
	rc.FFmpegBin = l.envString("FFMPEG_BIN", rc.FFmpegBin)
	rc.FFprobeBin = l.envString("FFPROBE_BIN", rc.FFprobeBin)

	cc := &cfg.Cache
	cc.Backend = strings.ToLower(l.envString("CACHE_BACKEND", cc.Backend))
	cc.RedisAddr = l.envString("REDIS_ADDR", cc.RedisAddr)
	cc.RedisPassword = l.envString("REDIS_PASSWORD", cc.RedisPassword)
	cc.RedisDB = l.envInt("REDIS_DB", cc.RedisDB)
	cc.RedisPrefix = l.envString("REDIS_PREFIX", cc.RedisPrefix)

	cfg.API.ListenAddr = l.envString("API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.Token = l.envString("API_TOKEN", cfg.API.Token)
	cfg.API.RateLimit = l.envInt("API_RATE_LIMIT", cfg.API.RateLimit)

	cfg.Metrics.Enabled = l.envBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.ListenAddr = l.envString("METRICS_LISTEN_ADDR", cfg.Metrics.ListenAddr)

	tc := &cfg.Telemetry
	tc.Enabled = l.envBool("TELEMETRY_ENABLED", tc.Enabled)
	tc.Exporter = strings.ToLower(l.envString("TELEMETRY_EXPORTER", tc.Exporter))
	tc.Endpoint = l.envString("TELEMETRY_ENDPOINT", tc.Endpoint)
	tc.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", tc.SamplingRate)
	tc.Environment = l.envString("TELEMETRY_ENVIRONMENT", tc.Environment)

	cfg.History.Enabled = l.envBool("HISTORY_ENABLED", cfg.History.Enabled)
	cfg.History.DBPath = l.envString("HISTORY_DB_PATH", cfg.History.DBPath)
	cfg.History.Retain = l.envInt("HISTORY_RETAIN", cfg.History.Retain)
}
