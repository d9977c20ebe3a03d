// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration from defaults, an optional
// YAML file and VPS_* environment variables, and supports hot reloading.
package config

import (
	"fmt"
	"time"
)

// AppConfig is the effective daemon configuration.
type AppConfig struct {
	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"`
	// Timezone is the platform timezone for every wall-clock decision.
	Timezone string `yaml:"timezone"`

	ConfigService  ConfigServiceConfig  `yaml:"configService"`
	SessionManager SessionManagerConfig `yaml:"sessionManager"`
	Scheduler      SchedulerConfig      `yaml:"scheduler"`
	Workday        WorkdayConfig        `yaml:"workday"`
	Recovery       RecoveryConfig       `yaml:"recovery"`
	Cache          CacheConfig          `yaml:"cache"`
	API            APIConfig            `yaml:"api"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	History        HistoryConfig        `yaml:"history"`

	Version string `yaml:"-"`
}

// ConfigServiceConfig points at the Configuration Service.
type ConfigServiceConfig struct {
	BaseURL   string        `yaml:"baseUrl"`
	APIKey    string        `yaml:"apiKey"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	RateLimit float64       `yaml:"rateLimit"`
	RateBurst int           `yaml:"rateBurst"`
}

// SessionManagerConfig points at the local Session Manager.
type SessionManagerConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

// SchedulerConfig tunes trigger dispatch.
type SchedulerConfig struct {
	ActionTimeout time.Duration `yaml:"actionTimeout"`
	MisfireGrace  time.Duration `yaml:"misfireGrace"`
}

// WorkdayConfig configures the holiday calendar source.
type WorkdayConfig struct {
	Enabled     bool          `yaml:"enabled"`
	CalendarURL string        `yaml:"calendarUrl"`
	CacheTTL    time.Duration `yaml:"cacheTTL"`
}

// RecoveryConfig configures the recording recovery sweep.
type RecoveryConfig struct {
	Enabled          bool          `yaml:"enabled"`
	RecordingsPath   string        `yaml:"recordingsPath"`
	StartupDelay     time.Duration `yaml:"startupDelay"`
	ScanRecentHours  int           `yaml:"scanRecentHours"`
	ScanDateDirs     int           `yaml:"scanDateDirs"`
	ConfirmDelay     time.Duration `yaml:"confirmDelay"`
	ProtectionPeriod time.Duration `yaml:"protectionPeriod"`
	ProbeTimeout     time.Duration `yaml:"probeTimeout"`
	RepairTimeout    time.Duration `yaml:"repairTimeout"`
	EndTimeTolerance time.Duration `yaml:"endTimeTolerance"`
	FFmpegBin        string        `yaml:"ffmpegBin"`
	FFprobeBin       string        `yaml:"ffprobeBin"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend       string `yaml:"backend"` // memory | redis
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	RedisPrefix   string `yaml:"redisPrefix"`
}

// APIConfig configures the admin HTTP surface.
type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	Token      string `yaml:"token"`
	RateLimit  int    `yaml:"rateLimit"` // mutating requests per minute and IP
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// HistoryConfig configures the recovery sweep history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"dbPath"`
	Retain  int    `yaml:"retain"`
}

// Location resolves the configured platform timezone.
func (c AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, c.Timezone, err)
	}
	return loc, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:  "/var/lib/transcoderd",
		LogLevel: "info",
		Timezone: "Asia/Shanghai",
		ConfigService: ConfigServiceConfig{
			Timeout:   10 * time.Second,
			CacheTTL:  60 * time.Second,
			RateLimit: 5,
			RateBurst: 10,
		},
		SessionManager: SessionManagerConfig{
			BaseURL: "http://127.0.0.1:3000",
			Timeout: 10 * time.Second,
		},
		Scheduler: SchedulerConfig{
			ActionTimeout: 2 * time.Minute,
			MisfireGrace:  5 * time.Minute,
		},
		Workday: WorkdayConfig{
			Enabled:     true,
			CalendarURL: "https://raw.githubusercontent.com/NateScarlet/holiday-cn/master/{year}.json",
			CacheTTL:    24 * time.Hour,
		},
		Recovery: RecoveryConfig{
			Enabled:          true,
			RecordingsPath:   "/var/www/recordings",
			StartupDelay:     5 * time.Second,
			ScanRecentHours:  48,
			ScanDateDirs:     3,
			ConfirmDelay:     30 * time.Second,
			ProtectionPeriod: 30 * time.Second,
			ProbeTimeout:     5 * time.Second,
			RepairTimeout:    5 * time.Minute,
			EndTimeTolerance: 300 * time.Second,
			FFmpegBin:        "ffmpeg",
		},
		Cache: CacheConfig{
			Backend:     "memory",
			RedisPrefix: "transcoderd:",
		},
		API: APIConfig{
			ListenAddr: ":8090",
			RateLimit:  30,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9090",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
		History: HistoryConfig{
			Enabled: true,
			Retain:  500,
		},
	}
}
