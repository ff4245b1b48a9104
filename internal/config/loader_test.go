package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/drillbook/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func clearConfigEnvVars() {
	for _, key := range []string{
		"DRILLBOOK_CONFIG",
		"DRILLBOOK_ADDR",
		"DRILLBOOK_LOG_LEVEL",
		"DRILLBOOK_SCOPE",
		"DRILLBOOK_IDENTITY_CACHE_SIZE",
		"DRILLBOOK_REFRESH_DEBOUNCE_MS",
		"DRILLBOOK_BUS_BUFFER_SIZE",
	} {
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "drillbook-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp config: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	_ = f.Close()
	return f.Name()
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.IdentityCacheSize, convey.ShouldEqual, 50_000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			clearConfigEnvVars()
			_ = os.Setenv("DRILLBOOK_ADDR", ":8080")
			_ = os.Setenv("DRILLBOOK_SCOPE", "team-7")
			_ = os.Setenv("DRILLBOOK_IDENTITY_CACHE_SIZE", "1000")
			_ = os.Setenv("DRILLBOOK_REFRESH_DEBOUNCE_MS", "100")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Scope, convey.ShouldEqual, "team-7")
				convey.So(cfg.IdentityCacheSize, convey.ShouldEqual, 1000)
				convey.So(cfg.RefreshDebounceMS, convey.ShouldEqual, 100)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			clearConfigEnvVars()
			tmpFile := createTempConfigFile(t, `
addr: ":7070"
log_level: debug
bus_buffer_size: 64
`)
			_ = os.Setenv("DRILLBOOK_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.BusBufferSize, convey.ShouldEqual, 64)
			})
		})

		convey.Convey("When env vars override the YAML file", func() {
			clearConfigEnvVars()
			tmpFile := createTempConfigFile(t, `
addr: ":7070"
`)
			_ = os.Setenv("DRILLBOOK_CONFIG", tmpFile)
			_ = os.Setenv("DRILLBOOK_ADDR", ":6060")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the env var wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
			})
		})

		convey.Convey("When the config file does not exist", func() {
			clearConfigEnvVars()
			_ = os.Setenv("DRILLBOOK_CONFIG", "/nonexistent/drillbook.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then the load kind is returned", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When validation fails", func() {
			clearConfigEnvVars()
			_ = os.Setenv("DRILLBOOK_ADDR", "")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then the invalid-config kind is returned", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
