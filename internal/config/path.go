// Package config provides configuration utilities for kasa.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Default locations, before ExpandPath.
const (
	DefaultConfigDir    = "$HOME/.config/kasa"
	DefaultDatabasePath = "$HOME/.local/share/kasa/kasa.db"
	DefaultUploadsDir   = "$HOME/.local/share/kasa/uploads"
	DefaultTokenFile    = "$HOME/.config/kasa/sheets-token.json"
)

// ExpandPath expands ~ and environment variables in a file path.
// It handles both ~ for home directory and $VAR style environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
