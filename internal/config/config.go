// Package config provides configuration management for scrcore using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultListenAddr      = "0.0.0.0:27183"
	defaultAcceptTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultContainerFormat = "mp4"
	defaultDeclaredWidth   = 1920
	defaultDeclaredHeight  = 1080
)

// Config holds all configuration for scrcored.
type Config struct {
	Listen   ListenConfig   `mapstructure:"listen"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ListenConfig holds the socket the stream engine accepts the capture
// connection on.
type ListenConfig struct {
	Addr           string        `mapstructure:"addr"`
	AcceptTimeout  time.Duration `mapstructure:"accept_timeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdown_period"`
}

// RecorderConfig holds recorder sink configuration.
type RecorderConfig struct {
	// Enabled attaches a recorder sink to the stream engine at Start.
	Enabled bool `mapstructure:"enabled"`
	// Format selects the muxer by name: "mp4" or "matroska".
	Format string `mapstructure:"format"`
	// OutputPath is the file the container is written to.
	OutputPath string `mapstructure:"output_path"`
	// DeclaredWidth/DeclaredHeight are the container-metadata frame size;
	// they need not match the actual decoded dimensions (spec §4.4).
	DeclaredWidth  int `mapstructure:"declared_width"`
	DeclaredHeight int `mapstructure:"declared_height"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with SCRCORE_ and use underscores for
// nesting, e.g. SCRCORE_LISTEN_ADDR=0.0.0.0:27183.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/scrcore")
		v.AddConfigPath("$HOME/.scrcore")
	}

	v.SetEnvPrefix("SCRCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen.addr", defaultListenAddr)
	v.SetDefault("listen.accept_timeout", defaultAcceptTimeout)
	v.SetDefault("listen.shutdown_period", defaultShutdownTimeout)

	v.SetDefault("recorder.enabled", false)
	v.SetDefault("recorder.format", defaultContainerFormat)
	v.SetDefault("recorder.output_path", "recording.mp4")
	v.SetDefault("recorder.declared_width", defaultDeclaredWidth)
	v.SetDefault("recorder.declared_height", defaultDeclaredHeight)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen.Addr == "" {
		return errors.New("listen.addr is required")
	}

	validFormats := map[string]bool{"mp4": true, "matroska": true}
	if c.Recorder.Enabled && !validFormats[c.Recorder.Format] {
		return fmt.Errorf("recorder.format must be one of: mp4, matroska")
	}
	if c.Recorder.Enabled && c.Recorder.OutputPath == "" {
		return errors.New("recorder.output_path is required when recorder.enabled")
	}
	if c.Recorder.DeclaredWidth < 1 || c.Recorder.DeclaredHeight < 1 {
		return errors.New("recorder.declared_width and declared_height must be positive")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
