// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yoyostream/transcoderd/internal/log"
)

// ParseString reads a string from environment variable or returns default value.
// It logs the source (environment or default) for observability.
func ParseString(key, defaultValue string) string {
	return parseEnv(key, defaultValue, func(v string) (string, bool) { return v, true },
		func(e *zerolog.Event, name, v string) *zerolog.Event {
			if isSensitive(key) && name == "value" {
				return e.Bool("sensitive", true)
			}
			return e.Str(name, v)
		})
}

// ParseInt reads an integer from environment variable or returns default value.
// It falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, func(v string) (int, bool) {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		return i, err == nil
	}, (*zerolog.Event).Int)
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseEnv(key, defaultValue, func(v string) (float64, bool) {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}, (*zerolog.Event).Float64)
}

// ParseDuration reads a duration in Go format (e.g. "5s") from environment.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, func(v string) (time.Duration, bool) {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		return d, err == nil
	}, (*zerolog.Event).Dur)
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return parseEnv(key, defaultValue, func(v string) (bool, bool) {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
		return false, false
	}, (*zerolog.Event).Bool)
}

type fieldFunc[T any] func(e *zerolog.Event, key string, v T) *zerolog.Event

func parseEnv[T any](key string, defaultValue T, parse func(string) (T, bool), field fieldFunc[T]) T {
	logger := log.WithComponent("config")

	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		reason := "using default value"
		if ok {
			reason = "using default value (environment variable is empty)"
		}
		field(logger.Debug().Str("key", key).Str("source", "default"), "default", defaultValue).Msg(reason)
		return defaultValue
	}

	parsed, valid := parse(v)
	if !valid {
		ev := logger.Warn().Str("key", key)
		if !isSensitive(key) {
			ev = ev.Str("value", v)
		}
		field(ev, "default", defaultValue).Msg("invalid value in environment variable, using default")
		return defaultValue
	}

	field(logger.Debug().Str("key", key).Str("source", "environment"), "value", parsed).Msg("using environment variable")
	return parsed
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "key")
}

// expandEnv expands environment variables in the format ${VAR} or $VAR
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
