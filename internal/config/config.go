// Package config loads drivemirror configuration from a TOML file and
// applies the override chain: defaults -> config file -> environment
// variables -> CLI flags. CLI flags always win, matching user expectations
// for one-off overrides without editing the config file.
package config

import (
	"fmt"
	"time"
)

// Default values. These are "layer 0" of the override chain and work for
// most users without any config file.
const (
	defaultDestination      = "."
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultMaxAttempts      = 5
	defaultBaseDelay        = Duration(1 * time.Second)
	defaultMaxDelay         = Duration(60 * time.Second)
	defaultModTimeTolerance = Duration(1 * time.Second)
	defaultMaxLocalFailures = 5
)

// Duration is a time.Duration that decodes from TOML strings like "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	*d = Duration(parsed)

	return nil
}

// Value returns the underlying time.Duration.
func (d Duration) Value() time.Duration {
	return time.Duration(d)
}

// RetryConfig tunes the per-operation retry policy.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   Duration `toml:"base_delay"`
	MaxDelay    Duration `toml:"max_delay"`
}

// MirrorConfig tunes the walker.
type MirrorConfig struct {
	ModTimeTolerance Duration `toml:"modtime_tolerance"`
	MaxLocalFailures int      `toml:"max_local_failures"`
}

// Config is the full configuration.
type Config struct {
	// Destination is the local mirror root directory.
	Destination string `toml:"destination"`
	// RootFolderID is the remote folder to mirror. Empty means the
	// account root.
	RootFolderID string `toml:"root_folder_id"`
	// CredentialsPath points at the OAuth app secrets file
	// (client id/secret), provided by the operator out-of-band.
	CredentialsPath string `toml:"credentials_path"`
	// TokenPath is where the OAuth token is cached.
	TokenPath string `toml:"token_path"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	Retry  RetryConfig  `toml:"retry"`
	Mirror MirrorConfig `toml:"mirror"`
}

// DefaultConfig returns a Config populated with all default values. Used
// as the starting point for TOML decoding (unset fields retain defaults)
// and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Destination:     defaultDestination,
		CredentialsPath: DefaultCredentialsPath(),
		TokenPath:       DefaultTokenPath(),
		LogLevel:        defaultLogLevel,
		LogFormat:       defaultLogFormat,
		Retry: RetryConfig{
			MaxAttempts: defaultMaxAttempts,
			BaseDelay:   defaultBaseDelay,
			MaxDelay:    defaultMaxDelay,
		},
		Mirror: MirrorConfig{
			ModTimeTolerance: defaultModTimeTolerance,
			MaxLocalFailures: defaultMaxLocalFailures,
		},
	}
}

// validLogLevels and validLogFormats gate the logging settings.
var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}
)

// Validate rejects configurations that would misbehave at runtime.
func Validate(cfg *Config) error {
	if cfg.Destination == "" {
		return fmt.Errorf("destination must not be empty")
	}

	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", cfg.LogLevel)
	}

	if !validLogFormats[cfg.LogFormat] {
		return fmt.Errorf("log_format %q is not one of auto, text, json", cfg.LogFormat)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", cfg.Retry.MaxAttempts)
	}

	if cfg.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be positive, got %s", cfg.Retry.BaseDelay.Value())
	}

	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay %s is below retry.base_delay %s",
			cfg.Retry.MaxDelay.Value(), cfg.Retry.BaseDelay.Value())
	}

	if cfg.Mirror.ModTimeTolerance < 0 {
		return fmt.Errorf("mirror.modtime_tolerance must not be negative, got %s",
			cfg.Mirror.ModTimeTolerance.Value())
	}

	if cfg.Mirror.MaxLocalFailures < 1 {
		return fmt.Errorf("mirror.max_local_failures must be at least 1, got %d",
			cfg.Mirror.MaxLocalFailures)
	}

	return nil
}
