// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers file and environment on top.
// - External errors are wrapped via this package's sentinel kinds.
package config

import (
	"context"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Scope selects the catalog slice fetched on refresh.
	Scope string `koanf:"scope"`

	// IdentityCacheSize bounds the execution identity cache.
	IdentityCacheSize int `koanf:"identity_cache_size"`

	// RefreshDebounceMS delays the event-triggered refetch.
	RefreshDebounceMS int `koanf:"refresh_debounce_ms"`

	// BusBufferSize bounds each feedback bus subscription.
	BusBufferSize int `koanf:"bus_buffer_size"`
}

// New creates a Config with defaults. Context is accepted first to
// satisfy the project-wide convention; it is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9090",
		Scope:             "",
		IdentityCacheSize: 50_000,
		RefreshDebounceMS: 250,
		BusBufferSize:     1024,
	}
}
