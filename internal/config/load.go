package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvOverrides carries the recognized DRIVEMIRROR_* environment variables.
type EnvOverrides struct {
	ConfigPath      string
	Destination     string
	RootFolderID    string
	CredentialsPath string
	TokenPath       string
}

// CLIOverrides carries values set by command-line flags.
// Flags have the highest precedence.
type CLIOverrides struct {
	ConfigPath   string
	Destination  string
	RootFolderID string
}

// ReadEnvOverrides collects the DRIVEMIRROR_* environment variables.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:      os.Getenv("DRIVEMIRROR_CONFIG"),
		Destination:     os.Getenv("DRIVEMIRROR_DESTINATION"),
		RootFolderID:    os.Getenv("DRIVEMIRROR_ROOT_FOLDER_ID"),
		CredentialsPath: os.Getenv("DRIVEMIRROR_CREDENTIALS"),
		TokenPath:       os.Getenv("DRIVEMIRROR_TOKEN"),
	}
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal — silently ignoring a typo in a
// config file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}

		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config with all default values. Supports the zero-config first run.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)
	applyCLI(cfg, cli)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.Destination != "" {
		cfg.Destination = env.Destination
	}

	if env.RootFolderID != "" {
		cfg.RootFolderID = env.RootFolderID
	}

	if env.CredentialsPath != "" {
		cfg.CredentialsPath = env.CredentialsPath
	}

	if env.TokenPath != "" {
		cfg.TokenPath = env.TokenPath
	}
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.Destination != "" {
		cfg.Destination = cli.Destination
	}

	if cli.RootFolderID != "" {
		cfg.RootFolderID = cli.RootFolderID
	}
}
