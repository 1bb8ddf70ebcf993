package config

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wxvault.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wxvault")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// LogPath returns the log file path.
func LogPath() string {
	return filepath.Join(BaseDir(), "logs", "wxvault.log")
}

// AccountDir returns the staging directory root for one account.
func AccountDir(outputDir, wxid string) string {
	return filepath.Join(outputDir, wxid)
}
