// Package config resolves drivesync's on-disk layout and loads the three
// TOML documents that make it up: config.toml, creds.toml, and session.toml.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// appName is the directory name used for config storage across platforms.
const appName = "drivesync"

const (
	configFileName  = "config.toml"
	credsFileName   = "creds.toml"
	sessionFileName = "session.toml"
	versionsFileName = "versions.json"
	lockFileName    = "drivesync.lock"
)

// DefaultConfigDir returns the platform-specific directory drivesync stores
// all of its state in. On Linux, respects XDG_CONFIG_HOME (defaults to
// ~/.config/drivesync). On macOS, uses ~/Library/Application Support/drivesync.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxConfigDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

func linuxConfigDir(home string) string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".config", appName)
}

// ConfigPath, CredsPath, SessionPath, VersionsPath, and LockPath return the
// full path to each of drivesync's persisted files under dir (normally
// DefaultConfigDir()).
func ConfigPath(dir string) string   { return filepath.Join(dir, configFileName) }
func CredsPath(dir string) string    { return filepath.Join(dir, credsFileName) }
func SessionPath(dir string) string  { return filepath.Join(dir, sessionFileName) }
func VersionsPath(dir string) string { return filepath.Join(dir, versionsFileName) }
func LockPath(dir string) string     { return filepath.Join(dir, lockFileName) }
