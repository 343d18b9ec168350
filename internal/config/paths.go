package config

import (
	"os"
	"path/filepath"
)

// appDirName is the per-user configuration directory name.
const appDirName = "drivemirror"

// configDir returns the drivemirror config directory, following the
// platform convention (XDG on Linux, Library/Application Support on macOS).
// Falls back to the working directory if the user config dir is unknown.
func configDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return appDirName
	}

	return filepath.Join(base, appDirName)
}

// DefaultConfigPath is where the TOML config file is looked up.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.toml")
}

// DefaultTokenPath is where the OAuth token cache lives.
func DefaultTokenPath() string {
	return filepath.Join(configDir(), "token.json")
}

// DefaultCredentialsPath is where the app secrets file is looked up.
func DefaultCredentialsPath() string {
	return filepath.Join(configDir(), "credentials.json")
}
