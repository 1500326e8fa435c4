// Package versionlog implements the persistent whole-document record of
// every synchronized object's last-seen version, content hash, and path —
// the single source of truth both daemons reconcile against.
package versionlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// Record is one object's last-known state as of the previous reconciliation
// cycle that observed it.
type Record struct {
	IsFolder bool   `json:"is_folder"`
	ParentID string `json:"parent_id"`
	Version  string `json:"version"`
	Path     string `json:"path"`
	MD5      string `json:"md5,omitempty"`
}

// List maps a hosted-drive object id to its last-known Record.
type List map[string]Record

// Log is a file-backed, whole-document version log. A Log is not safe for
// concurrent use by itself — callers serialize access through the guard in
// package engine, acquiring the log's lock before the client's.
type Log struct {
	path   string
	logger *slog.Logger
}

// New returns a Log backed by path. The file need not exist yet; List
// treats a missing or corrupt file as an empty document (cold start).
func New(path string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}

	return &Log{path: path, logger: logger}
}

// List reads the whole document. A missing file, or one that fails to
// parse, yields an empty List rather than an error — the log format has no
// versioning of its own, and recovering to "nothing has ever been seen" is
// always safe: the next cycle re-derives everything from the remote tree.
func (l *Log) List(ctx context.Context) (List, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return List{}, nil
		}

		return nil, fmt.Errorf("versionlog: reading %s: %w", l.path, err)
	}

	var list List
	if err := json.Unmarshal(data, &list); err != nil {
		l.logger.Warn("version log is corrupt, starting cold",
			slog.String("path", l.path),
			slog.String("error", err.Error()),
		)

		return List{}, nil
	}

	if list == nil {
		list = List{}
	}

	return list, nil
}

// Save atomically replaces the document with list: write to a temp file in
// the same directory, fsync, then rename over the target. Readers never see
// a partially written document.
func (l *Log) Save(ctx context.Context, list List) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("versionlog: encoding: %w", err)
	}

	dir := filepath.Dir(l.path)

	tmp, err := os.CreateTemp(dir, ".versionlog-*.tmp")
	if err != nil {
		return fmt.Errorf("versionlog: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("versionlog: chmod temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("versionlog: writing temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("versionlog: fsync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("versionlog: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("versionlog: renaming into place: %w", err)
	}

	tmpPath = ""

	return nil
}

// FindByPath returns the id and Record of the entry whose Path matches,
// and whether one was found. Pure lookup, no I/O.
func FindByPath(list List, path string) (id string, rec Record, ok bool) {
	for candID, candRec := range list {
		if candRec.Path == path {
			return candID, candRec, true
		}
	}

	return "", Record{}, false
}
