package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if DRILLBOOK_CONFIG is set
//  3. env (prefix DRILLBOOK_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv("DRILLBOOK_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: DRILLBOOK_ADDR, DRILLBOOK_LOG_LEVEL, ...
	// Keys keep their underscores to match the koanf struct tags.
	envProvider := env.Provider("DRILLBOOK_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "drillbook_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if cfg.IdentityCacheSize < 0 {
		return nil, fmt.Errorf("%w: identity_cache_size must not be negative", ErrInvalidConfig)
	}
	if cfg.RefreshDebounceMS <= 0 {
		return nil, fmt.Errorf("%w: refresh_debounce_ms must be positive", ErrInvalidConfig)
	}
	return &cfg, nil
}
