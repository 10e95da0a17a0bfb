// Package config loads optional tpatch settings from .tpatch.yaml and
// TPATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/sokinpui/tpatch/internal/patcher"
)

// EnvPrefix is prepended to every environment override, e.g. TPATCH_LOG_LEVEL.
const EnvPrefix = "TPATCH"

// Config holds the settings that flags can override.
type Config struct {
	Log        LogConfig `mapstructure:"log"`
	Strategies []string  `mapstructure:"strategies"`
	StateDir   string    `mapstructure:"state_dir"`
	History    bool      `mapstructure:"history"`
	LookupDirs []string  `mapstructure:"lookup_dirs"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Load reads the config file at path, or searches the working directory and
// $HOME/.config/tpatch for .tpatch.yaml when path is empty. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".tpatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "tpatch"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := patcher.ParseStrategies(c.Strategies); err != nil {
		return fmt.Errorf("strategies: %w", err)
	}
	if c.StateDir == "" {
		return errors.New("state_dir must not be empty")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")

	names := make([]string, len(patcher.DefaultStrategies))
	for i, s := range patcher.DefaultStrategies {
		names[i] = string(s)
	}
	v.SetDefault("strategies", names)
	v.SetDefault("state_dir", ".tpatch")
	v.SetDefault("history", true)
	v.SetDefault("lookup_dirs", []string{})
}
