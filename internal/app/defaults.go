package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths are the default locations drivesync reads and writes when the
// config does not say otherwise.
type Paths struct {
	// ConfigPath is the TOML config file.
	ConfigPath string
	// BaseDir holds the index, credentials and logs.
	BaseDir string
}

// LogDir is where the rotating log file lives.
func (p Paths) LogDir() string { return filepath.Join(p.BaseDir, "log") }

// GetDefaults resolves Paths from the environment, most specific first:
//
//	config: $DRIVESYNC_CONFIG_PATH, $XDG_CONFIG_HOME/drivesync.toml, ~/.config/drivesync.toml
//	data:   $DRIVESYNC_HOME, $XDG_DATA_HOME/drivesync, ~/.local/share/drivesync
func GetDefaults() (Paths, error) {
	var p Paths

	home, homeErr := os.UserHomeDir()
	resolve := func(override, xdgVar, xdgName string, fallback ...string) (string, error) {
		if v := os.Getenv(override); v != "" {
			return v, nil
		}
		if v := os.Getenv(xdgVar); v != "" {
			return filepath.Join(v, xdgName), nil
		}
		if homeErr != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", homeErr)
		}
		return filepath.Join(append([]string{home}, fallback...)...), nil
	}

	var err error
	if p.ConfigPath, err = resolve("DRIVESYNC_CONFIG_PATH", "XDG_CONFIG_HOME", "drivesync.toml", ".config", "drivesync.toml"); err != nil {
		return Paths{}, err
	}
	if p.BaseDir, err = resolve("DRIVESYNC_HOME", "XDG_DATA_HOME", "drivesync", ".local", "share", "drivesync"); err != nil {
		return Paths{}, err
	}
	return p, nil
}
