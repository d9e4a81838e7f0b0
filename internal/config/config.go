/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment  string
	SettingsPath string // persisted root and volume

	// Playback pipeline
	QueueDepth       int           // tracks kept loaded ahead of the one playing
	ProgressInterval time.Duration // player position sampling cadence
	TrackExtensions  []string      // eligible file extensions, lower case with dot
	SampleRate       int           // output device rate
	CoverMaxPx       int
	VolumeDebounce   time.Duration // quiet period before a volume change is persisted

	// Library watching
	WatchRoot     bool
	WatchDebounce time.Duration

	// Control API
	HTTPBind string
	HTTPPort int

	HistoryDSN     string // sqlite file for play history, empty disables it
	LogBufferLines int

	// Tracing (OpenTelemetry, OTLP over gRPC)
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:  getEnvAny([]string{"FAIRPLAY_ENV"}, "development"),
		SettingsPath: getEnvAny([]string{"FAIRPLAY_SETTINGS_PATH"}, "settings.json"),

		QueueDepth:       getEnvIntAny([]string{"FAIRPLAY_QUEUE_DEPTH"}, 3),
		ProgressInterval: time.Duration(getEnvIntAny([]string{"FAIRPLAY_PROGRESS_INTERVAL_MS"}, 100)) * time.Millisecond,
		TrackExtensions:  parseExtensions(getEnvAny([]string{"FAIRPLAY_TRACK_EXTENSIONS"}, ".mp3")),
		SampleRate:       getEnvIntAny([]string{"FAIRPLAY_SAMPLE_RATE"}, 44100),
		CoverMaxPx:       getEnvIntAny([]string{"FAIRPLAY_COVER_MAX_PX"}, 512),
		VolumeDebounce:   time.Duration(getEnvIntAny([]string{"FAIRPLAY_VOLUME_DEBOUNCE_MS"}, 500)) * time.Millisecond,

		WatchRoot:     getEnvBoolAny([]string{"FAIRPLAY_WATCH_ROOT"}, true),
		WatchDebounce: time.Duration(getEnvIntAny([]string{"FAIRPLAY_WATCH_DEBOUNCE_MS"}, 2000)) * time.Millisecond,

		HTTPBind: getEnvAny([]string{"FAIRPLAY_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort: getEnvIntAny([]string{"FAIRPLAY_HTTP_PORT", "PORT"}, 8787),

		HistoryDSN:     getEnvAny([]string{"FAIRPLAY_HISTORY_DSN"}, "fairplay.db"),
		LogBufferLines: getEnvIntAny([]string{"FAIRPLAY_LOG_BUFFER"}, 2000),

		TracingEnabled:    getEnvBoolAny([]string{"FAIRPLAY_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"FAIRPLAY_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"FAIRPLAY_TRACING_SAMPLE_RATE"}, 1.0),
	}
	// An explicitly empty DSN turns history off.
	if v, ok := os.LookupEnv("FAIRPLAY_HISTORY_DSN"); ok && strings.TrimSpace(v) == "" {
		cfg.HistoryDSN = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the ranges Load cannot express through defaults.
func (c *Config) Validate() error {
	if c.QueueDepth < 1 {
		return fmt.Errorf("FAIRPLAY_QUEUE_DEPTH must be at least 1, got %d", c.QueueDepth)
	}
	if c.ProgressInterval < 10*time.Millisecond {
		return fmt.Errorf("FAIRPLAY_PROGRESS_INTERVAL_MS must be at least 10, got %d", c.ProgressInterval.Milliseconds())
	}
	if len(c.TrackExtensions) == 0 {
		return fmt.Errorf("FAIRPLAY_TRACK_EXTENSIONS must list at least one extension")
	}
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("FAIRPLAY_SAMPLE_RATE out of range: %d", c.SampleRate)
	}
	if c.CoverMaxPx < 1 {
		return fmt.Errorf("FAIRPLAY_COVER_MAX_PX must be positive, got %d", c.CoverMaxPx)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("FAIRPLAY_HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.LogBufferLines < 0 {
		return fmt.Errorf("FAIRPLAY_LOG_BUFFER must not be negative")
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("FAIRPLAY_TRACING_SAMPLE_RATE must be between 0 and 1, got %g", c.TracingSampleRate)
	}
	if c.TracingEnabled && strings.TrimSpace(c.OTLPEndpoint) == "" {
		return fmt.Errorf("FAIRPLAY_OTLP_ENDPOINT is required when tracing is enabled")
	}
	return nil
}

// Addr returns the control API listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// IsDevelopment reports whether debug logging should be on.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// parseExtensions splits a comma list into lower case extensions with a leading dot.
func parseExtensions(raw string) []string {
	var exts []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		ext := strings.ToLower(strings.TrimSpace(part))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !seen[ext] {
			seen[ext] = true
			exts = append(exts, ext)
		}
	}
	return exts
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}
