package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// LoadConfig reads and parses config.toml.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	return cfg, nil
}

// LoadCreds reads and parses creds.toml.
func LoadCreds(path string) (Creds, error) {
	var creds Creds
	if _, err := toml.DecodeFile(path, &creds); err != nil {
		return Creds{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	return creds, nil
}

// LoadSession reads and parses session.toml. A missing file is not an
// error — it returns a zero Session, the state of an unauthenticated
// install.
func LoadSession(path string) (Session, error) {
	var session Session

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Session{}, nil
	}

	if _, err := toml.DecodeFile(path, &session); err != nil {
		return Session{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	return session, nil
}

// SaveSession atomically writes session to path: encode to a temp file in
// the same directory, fsync, then rename over the target — the same
// write-then-rename shape the version log uses.
func SaveSession(path string, session Session) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("config: creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("config: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("config: chmod temp file: %w", err)
	}

	if err := toml.NewEncoder(tmp).Encode(session); err != nil {
		tmp.Close()
		return fmt.Errorf("config: encoding session: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("config: fsync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("config: renaming into place: %w", err)
	}

	tmpPath = ""

	return nil
}
