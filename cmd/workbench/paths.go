package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds all resolved workbench state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	Home         string // ~/.workbench or WORKBENCH_HOME
	DBPath       string // state.db or WORKBENCH_DB_PATH
	ConfigPath   string // config.toml or WORKBENCH_CONFIG
	WorkspaceDir string // workspaces/ under Home
}

// ResolvePaths returns all workbench paths, respecting env var overrides.
// Environment variables:
//   - WORKBENCH_HOME: base directory for all state (default: ~/.workbench)
//   - WORKBENCH_DB_PATH: job store database (default: $WORKBENCH_HOME/state.db)
//   - WORKBENCH_CONFIG: config file (default: $WORKBENCH_HOME/config.toml)
//
// If WORKBENCH_HOME is set, it becomes the base for all default paths.
// Specific env vars override both the default and the WORKBENCH_HOME base.
func ResolvePaths() (*Paths, error) {
	home, err := resolveHome()
	if err != nil {
		return nil, err
	}

	return &Paths{
		Home:         home,
		DBPath:       resolvePathWithEnv("WORKBENCH_DB_PATH", home, "state.db"),
		ConfigPath:   resolvePathWithEnv("WORKBENCH_CONFIG", home, "config.toml"),
		WorkspaceDir: filepath.Join(home, "workspaces"),
	}, nil
}

// resolveHome returns the workbench home from WORKBENCH_HOME or ~/.workbench.
func resolveHome() (string, error) {
	if v := os.Getenv("WORKBENCH_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".workbench"), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
