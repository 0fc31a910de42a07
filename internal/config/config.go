// Package config loads sharedserver's optional configuration file and
// merges it with environment variables and CLI flags. Precedence, highest
// first: CLI flag > config file > environment variable > built-in default.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config holds the tunables every command consults. All fields optional;
// zero values fall back to built-in defaults applied by callers.
type Config struct {
	LockDir        string        `mapstructure:"lock_dir"`
	GracePeriod    string        `mapstructure:"grace_period"`
	ShutdownSignal string        `mapstructure:"shutdown_signal"`
	StartWindow    string        `mapstructure:"start_window"`
	PollInterval   string        `mapstructure:"poll_interval"`
	KillWait       string        `mapstructure:"kill_wait"`
	Log            LogConfig     `mapstructure:"log"`
	Metrics        MetricsConfig `mapstructure:"metrics"`
	History        HistoryConfig `mapstructure:"history"`
}

// LogConfig controls the watcher/debug log rotation.
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig controls the watcher's optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// HistoryConfig controls the optional SQLite-backed debug history sink.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// decodeTo mirrors the generic mapstructure decode helper used throughout
// this codebase's config loading.
func decodeTo[T any](m map[string]any) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(m); err != nil {
		return out, err
	}
	return out, nil
}

// searchPaths returns the directories Load consults when no explicit path
// is given, in priority order.
func searchPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sharedserver"))
	}
	paths = append(paths, "/etc/sharedserver")
	return paths
}

// Load reads the config file at path, or if path is empty, searches the
// standard locations for "config.toml" (also accepting .yaml/.yml/.json).
// A missing config file is not an error: Load returns a zero Config so
// callers fall through to environment variables and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHAREDSERVER")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		for _, p := range searchPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return &Config{}, nil
		}
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := decodeTo[Config](v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// StringOr returns flagVal if set, else cfgVal if set, else envVar's value
// if set, else def — encoding the documented CLI > config > env > default
// precedence for a single string-valued knob.
func StringOr(flagVal, cfgVal, envVar, def string) string {
	if flagVal != "" {
		return flagVal
	}
	if cfgVal != "" {
		return cfgVal
	}
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return def
}
