// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package docview

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Configuration errors.
var (
	// ErrInvalidConfig is returned for unparsable or out-of-range settings.
	ErrInvalidConfig = errors.New("docview: invalid config")

	// ErrConfigNotFound is returned when an explicitly named config file
	// does not exist.
	ErrConfigNotFound = errors.New("docview: config file not found")
)

// Config holds viewer settings. The file format is JSON with comments and
// trailing commas allowed.
type Config struct {
	// CacheCapacity is the number of rendered pages kept (Ready and Pending).
	CacheCapacity int `json:"cache_capacity"`
	// Workers is the number of background rasterization goroutines.
	Workers int `json:"workers"`
	// DataDir holds persisted annotations.
	DataDir string `json:"data_dir"`
	// PrefetchPages is how many pages around the visible ones are rendered
	// ahead of time.
	PrefetchPages int `json:"prefetch_pages"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		CacheCapacity: 32,
		Workers:       1,
		DataDir:       defaultDataDir(),
		PrefetchPages: 1,
		LogLevel:      "warn",
	}
}

// ConfigFileName is the name of the config file inside the user config
// directory.
const ConfigFileName = "config.json"

// DefaultConfigPath returns $XDG_CONFIG_HOME/docview/config.json, or
// ~/.config/docview/config.json. It returns "" if the home directory is
// unknown.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docview", ConfigFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "docview", ConfigFileName)
}

// defaultDataDir returns $XDG_DATA_HOME/docview or ~/.local/share/docview.
func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "docview")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "docview")
	}
	return filepath.Join(home, ".local", "share", "docview")
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. The file at path, or the default config file if path is empty
//
// An explicit path must exist; a missing default file is ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	mustExist := path != ""
	if !mustExist {
		path = DefaultConfigPath()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if mustExist {
				return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return cfg, nil
		}
		return Config{}, fmt.Errorf("%w: read %s: %w", ErrInvalidConfig, path, err)
	}

	cfg, err = ParseConfig(data, cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig overlays the JSONC document data on base and validates the
// result. Fields missing from data keep their base values.
func ParseConfig(data []byte, base Config) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: invalid JSONC: %w", ErrInvalidConfig, err)
	}

	cfg := base
	dec := json.NewDecoder(strings.NewReader(string(standardized)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every setting.
func (c Config) Validate() error {
	if c.CacheCapacity < 1 {
		return fmt.Errorf("%w: cache_capacity must be at least 1, got %d", ErrInvalidConfig, c.CacheCapacity)
	}
	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("%w: workers must be between 1 and 64, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.PrefetchPages < 0 {
		return fmt.Errorf("%w: prefetch_pages must not be negative, got %d", ErrInvalidConfig, c.PrefetchPages)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("%w: data_dir is empty", ErrInvalidConfig)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns LogLevel as a slog level.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return level, nil
}
