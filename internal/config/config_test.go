// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("", "test-version").Load()
	require.NoError(t, err)

	assert.Equal(t, "Asia/Shanghai", cfg.Timezone)
	assert.Equal(t, 48, cfg.Recovery.ScanRecentHours)
	assert.Equal(t, 30*time.Second, cfg.Recovery.ConfirmDelay)
	assert.Equal(t, 5*time.Second, cfg.Recovery.StartupDelay)
	assert.Equal(t, 60*time.Second, cfg.ConfigService.CacheTTL)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "ffprobe", cfg.Recovery.FFprobeBin)
	assert.Equal(t, filepath.Join(cfg.DataDir, "history.db"), cfg.History.DBPath)
	assert.Equal(t, "test-version", cfg.Version)
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
timezone: Europe/Berlin
configService:
  baseUrl: https://workers.example.com
  apiKey: secret
scheduler:
  misfireGrace: 2m
recovery:
  scanRecentHours: 500
  recordingsPath: /data/rec
`)
	cfg, err := NewLoader(path, "v").Load()
	require.NoError(t, err)

	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, "https://workers.example.com", cfg.ConfigService.BaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.MisfireGrace)
	assert.Equal(t, MaxScanHours, cfg.Recovery.ScanRecentHours)
	assert.Equal(t, "/data/rec", cfg.Recovery.RecordingsPath)
	// untouched defaults survive
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.ActionTimeout)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "bogus: true\n")
	_, err := NewLoader(path, "v").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict config parse error")
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "timezone: UTC\n---\ntimezone: UTC\n")
	_, err := NewLoader(path, "v").Load()
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "timezone: UTC\n")
	t.Setenv("VPS_TIMEZONE", "Asia/Tokyo")
	t.Setenv("VPS_RECOVERY_SCAN_RECENT_HOURS", "1")
	t.Setenv("VPS_CACHE_BACKEND", "REDIS")

	l := NewLoader(path, "v")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	assert.Equal(t, MinScanHours, cfg.Recovery.ScanRecentHours)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Contains(t, l.ConsumedEnvKeys, "VPS_TIMEZONE")
}

func TestClampScanHours(t *testing.T) {
	assert.Equal(t, 12, ClampScanHours(0))
	assert.Equal(t, 48, ClampScanHours(48))
	assert.Equal(t, 168, ClampScanHours(1000))
}

func validConfig() AppConfig {
	cfg := Defaults()
	cfg.ConfigService.BaseURL = "https://workers.example.com"
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(validConfig()))

	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{"timezone", func(c *AppConfig) { c.Timezone = "Mars/Base" }, "invalid timezone"},
		{"missing config service", func(c *AppConfig) { c.ConfigService.BaseURL = "" }, "configService.baseUrl is required"},
		{"bad scheme", func(c *AppConfig) { c.SessionManager.BaseURL = "ftp://x" }, "unsupported scheme"},
		{"calendar placeholder", func(c *AppConfig) { c.Workday.CalendarURL = "https://x/cal.json" }, "{year}"},
		{"redis addr", func(c *AppConfig) { c.Cache.Backend = "redis" }, "redisAddr"},
		{"backend", func(c *AppConfig) { c.Cache.Backend = "disk" }, "cache.backend"},
		{"exporter", func(c *AppConfig) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }, "telemetry.exporter"},
		{"date dirs", func(c *AppConfig) { c.Recovery.ScanDateDirs = 0 }, "scanDateDirs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLocation(t *testing.T) {
	loc, err := validConfig().Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", loc.String())
}
