package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override the default locations.
const (
	EnvConfigPath = "DEDUPE_CONFIG_PATH"
	EnvHome       = "DEDUPE_HOME"
)

// Defaults holds the locations used when the config file does not say otherwise.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
	ReportDir  string
	LockPath   string
}

// GetDefaults returns the default locations, checking the environment first.
//   - DEDUPE_CONFIG_PATH: config file (default ~/.config/dedupe.toml)
//   - DEDUPE_HOME: data directory (default ~/.local/share/dedupe)
func GetDefaults() (Defaults, error) {
	configPath, err := envOrHome(EnvConfigPath, ".config", "dedupe.toml")
	if err != nil {
		return Defaults{}, err
	}
	baseDir, err := envOrHome(EnvHome, ".local", "share", "dedupe")
	if err != nil {
		return Defaults{}, err
	}
	return Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		ReportDir:  filepath.Join(baseDir, "reports"),
		LockPath:   LockPath(baseDir),
	}, nil
}

// LockPath is the file that serializes live reconcile runs for one data directory.
func LockPath(baseDir string) string {
	return filepath.Join(baseDir, "dedupe.lock")
}

func envOrHome(env string, elem ...string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
