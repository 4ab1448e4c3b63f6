// Package config loads the application configuration. Values come from
// defaults, then an optional YAML file, then STRATA_* environment variables,
// and are validated before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the default config file name inside the user config dir.
const FileName = "strata.yaml"

// Config is the full application configuration.
type Config struct {
	App          AppConfig     `yaml:"app"`
	ExplorerRoot string        `yaml:"explorerRoot"`
	Image        ImageConfig   `yaml:"image"`
	Log          LogConfig     `yaml:"log"`
	Metrics      MetricsConfig `yaml:"metrics"`
	Watch        WatchConfig   `yaml:"watch"`
	Script       ScriptConfig  `yaml:"script"`
}

// AppConfig describes the main window.
type AppConfig struct {
	Name   string `yaml:"name" validate:"required"`
	Width  int    `yaml:"width" validate:"gte=320,lte=16384"`
	Height int    `yaml:"height" validate:"gte=240,lte=16384"`
}

// ImageConfig sizes images that have no input to take a size from: slot
// defaults, uniform colors, new noise generators.
type ImageConfig struct {
	DefaultWidth  int `yaml:"defaultWidth" validate:"gte=1,lte=16384"`
	DefaultHeight int `yaml:"defaultHeight" validate:"gte=1,lte=16384"`
}

type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// WatchConfig controls rescanning of dynamic image folders.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

type ScriptConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		App:          AppConfig{Name: "Strata", Width: 1440, Height: 900},
		ExplorerRoot: home,
		Image:        ImageConfig{DefaultWidth: 2048, DefaultHeight: 2048},
		Log:          LogConfig{Level: "info"},
		Metrics:      MetricsConfig{Enabled: true},
		Watch:        WatchConfig{Enabled: true, Debounce: 250 * time.Millisecond},
		Script:       ScriptConfig{Timeout: 5 * time.Second},
	}
}

// DefaultPath returns the config file location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "strata", FileName), nil
}

var validate = validator.New()

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Load builds the configuration. A missing file at path is not an error;
// an empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays STRATA_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	flag := func(key string, dst *bool) error {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
		return nil
	}

	str("STRATA_APP_NAME", &c.App.Name)
	str("STRATA_EXPLORER_ROOT", &c.ExplorerRoot)
	str("STRATA_LOG_LEVEL", &c.Log.Level)
	if v, ok := lookup("STRATA_SCRIPT_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STRATA_SCRIPT_TIMEOUT: %w", err)
		}
		c.Script.Timeout = d
	}
	for _, f := range []func() error{
		func() error { return num("STRATA_APP_WIDTH", &c.App.Width) },
		func() error { return num("STRATA_APP_HEIGHT", &c.App.Height) },
		func() error { return num("STRATA_IMAGE_WIDTH", &c.Image.DefaultWidth) },
		func() error { return num("STRATA_IMAGE_HEIGHT", &c.Image.DefaultHeight) },
		func() error { return flag("STRATA_LOG_DEVELOPMENT", &c.Log.Development) },
		func() error { return flag("STRATA_METRICS_ENABLED", &c.Metrics.Enabled) },
		func() error { return flag("STRATA_WATCH_ENABLED", &c.Watch.Enabled) },
	} {
		if err := f(); err != nil {
			return fmt.Errorf("environment override: %w", err)
		}
	}
	return nil
}
