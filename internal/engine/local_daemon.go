package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/drivesync/internal/driveapi"
	"github.com/tonimelisma/drivesync/internal/reconcile"
	"github.com/tonimelisma/drivesync/internal/versionlog"
)

// DefaultDebounceInterval is how long LocalDaemon waits for filesystem
// activity to quiesce before acting on it.
const DefaultDebounceInterval = 5 * time.Second

// localEventKind is one of the four event shapes a raw fsnotify stream
// collapses down to before reconciliation runs.
type localEventKind int

const (
	localCreate localEventKind = iota
	localWrite
	localRemove
	localRename
)

type localEvent struct {
	kind    localEventKind
	path    string
	oldPath string // set only for localRename
}

// LocalDaemon watches the local root and, after each debounce window,
// mirrors what changed up to the remote tree.
type LocalDaemon struct {
	logGuard         *Guard[*versionlog.Log]
	clientGuard      *Guard[RemoteClient]
	refresher        TokenRefresher
	rootID           string
	localRoot        string
	debounceInterval time.Duration
	newWatcher       func() (*fsnotify.Watcher, error)
	logger           *slog.Logger
}

// NewLocalDaemon constructs a LocalDaemon. debounceInterval of zero selects
// DefaultDebounceInterval.
func NewLocalDaemon(
	logGuard *Guard[*versionlog.Log],
	clientGuard *Guard[RemoteClient],
	refresher TokenRefresher,
	rootID, localRoot string,
	debounceInterval time.Duration,
	logger *slog.Logger,
) *LocalDaemon {
	if debounceInterval <= 0 {
		debounceInterval = DefaultDebounceInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &LocalDaemon{
		logGuard:         logGuard,
		clientGuard:      clientGuard,
		refresher:        refresher,
		rootID:           rootID,
		localRoot:        localRoot,
		debounceInterval: debounceInterval,
		newWatcher:       fsnotify.NewWatcher,
		logger:           logger,
	}
}

// Run watches localRoot recursively until ctx is canceled, debouncing raw
// filesystem events and reconciling each debounced batch to the remote
// tree.
func (d *LocalDaemon) Run(ctx context.Context) error {
	watcher, err := d.newWatcher()
	if err != nil {
		return fmt.Errorf("local daemon: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatchesRecursive(watcher, d.localRoot); err != nil {
		return fmt.Errorf("local daemon: watching %s: %w", d.localRoot, err)
	}

	pending := map[string]localEvent{}
	var timer *time.Timer

	resetTimer := func() {
		if timer == nil {
			timer = time.NewTimer(d.debounceInterval)
		} else {
			timer.Reset(d.debounceInterval)
		}
	}

	timerC := func() <-chan time.Time {
		if timer == nil {
			return nil
		}

		return timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			d.logger.Warn("watcher error", slog.String("error", err.Error()))

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if ev.Op == fsnotify.Chmod {
				continue
			}

			if !reconcile.StartsWithRoot(ev.Name, d.localRoot) {
				// A watch on a directory fsnotify hasn't yet removed can
				// still deliver one straggling event after its subtree
				// moved away from localRoot.
				continue
			}

			if ev.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = watcher.Add(ev.Name)
				}
			}

			coalesce(pending, ev)
			resetTimer()

		case <-timerC():
			batch := pending
			pending = map[string]localEvent{}

			if err := d.handleBatch(ctx, resolveRenames(batch)); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				if errors.Is(err, ErrRefreshFailed) {
					return err
				}

				d.logger.Error("local sync batch failed", slog.String("error", err.Error()))
			}
		}
	}
}

// coalesce folds one raw fsnotify event into the pending-by-path map,
// keeping only the most recent/significant kind observed for a path within
// the current debounce window.
func coalesce(pending map[string]localEvent, ev fsnotify.Event) {
	switch {
	case ev.Op&fsnotify.Remove == fsnotify.Remove:
		pending[ev.Name] = localEvent{kind: localRemove, path: ev.Name}
	case ev.Op&fsnotify.Rename == fsnotify.Rename:
		pending[ev.Name] = localEvent{kind: localRename, path: ev.Name, oldPath: ev.Name}
	case ev.Op&fsnotify.Create == fsnotify.Create:
		if existing, ok := pending[ev.Name]; !ok || existing.kind != localWrite {
			pending[ev.Name] = localEvent{kind: localCreate, path: ev.Name}
		}
	case ev.Op&fsnotify.Write == fsnotify.Write:
		pending[ev.Name] = localEvent{kind: localWrite, path: ev.Name}
	}
}

// resolveRenames pairs a Rename-origin event (inotify IN_MOVED_FROM, which
// fsnotify reports against the old path) with a Create event for a
// different path observed in the same batch (IN_MOVED_TO), producing a
// single Rename(old, new) event. A Rename-origin with no matching Create in
// the batch is a move out of the watched tree — treated as Remove.
func resolveRenames(pending map[string]localEvent) []localEvent {
	var renameOrigins []string
	var creates []string

	for path, ev := range pending {
		switch ev.kind {
		case localRename:
			renameOrigins = append(renameOrigins, path)
		case localCreate:
			creates = append(creates, path)
		}
	}

	out := make([]localEvent, 0, len(pending))

	usedCreate := map[string]bool{}

	for _, origin := range renameOrigins {
		matched := false

		for _, c := range creates {
			if usedCreate[c] {
				continue
			}

			out = append(out, localEvent{kind: localRename, oldPath: origin, path: c})
			usedCreate[c] = true
			matched = true

			break
		}

		if !matched {
			out = append(out, localEvent{kind: localRemove, path: origin})
		}
	}

	for path, ev := range pending {
		if ev.kind == localRename {
			continue
		}

		if ev.kind == localCreate && usedCreate[path] {
			continue
		}

		out = append(out, ev)
	}

	return out
}

func (d *LocalDaemon) handleBatch(ctx context.Context, events []localEvent) error {
	return withGuards(ctx, d.logGuard, d.clientGuard, func(log *versionlog.Log, client RemoteClient) error {
		list, err := log.List(ctx)
		if err != nil {
			return err
		}

		for _, ev := range events {
			if err := d.handleEvent(ctx, client, list, ev); err != nil {
				if errors.Is(err, driveapi.ErrUnauthorized) {
					d.logger.Warn("local request unauthorized, refreshing token")

					if rerr := d.refresher.Refresh(ctx); rerr != nil {
						return fmt.Errorf("%w: %v", ErrRefreshFailed, rerr)
					}

					return log.Save(ctx, list)
				}

				d.logger.Error("local event failed", slog.String("path", ev.path), slog.String("error", err.Error()))

				continue
			}
		}

		return log.Save(ctx, list)
	})
}

func (d *LocalDaemon) handleEvent(ctx context.Context, client RemoteClient, list versionlog.List, ev localEvent) error {
	switch ev.kind {
	case localRemove:
		return d.handleRemove(ctx, client, list, ev.path)
	case localRename:
		return d.handleRename(ctx, client, list, ev.oldPath, ev.path)
	case localCreate, localWrite:
		return d.handleCreateOrWrite(ctx, client, list, ev.path)
	default:
		return nil
	}
}

func (d *LocalDaemon) handleRemove(ctx context.Context, client RemoteClient, list versionlog.List, path string) error {
	id, _, ok := versionlog.FindByPath(list, path)
	if !ok {
		return nil
	}

	if err := client.DeleteFile(ctx, id); err != nil && !errors.Is(err, driveapi.ErrNotFound) {
		return fmt.Errorf("deleting %s: %w", path, err)
	}

	delete(list, id)

	return nil
}

func (d *LocalDaemon) handleRename(ctx context.Context, client RemoteClient, list versionlog.List, oldPath, newPath string) error {
	id, rec, ok := versionlog.FindByPath(list, oldPath)
	if !ok {
		return d.handleCreateOrWrite(ctx, client, list, newPath)
	}

	newParentID, err := d.ensureRemoteParent(ctx, client, list, filepath.Dir(newPath))
	if err != nil {
		return err
	}

	newName := reconcile.FileName(newPath)

	updated, err := client.RenameFile(ctx, id, newName, rec.ParentID, newParentID)
	if err != nil {
		return fmt.Errorf("renaming %s to %s: %w", oldPath, newPath, err)
	}

	rec.ParentID = newParentID
	rec.Path = newPath
	rec.Version = updated.Version
	list[id] = rec

	return nil
}

func (d *LocalDaemon) handleCreateOrWrite(ctx context.Context, client RemoteClient, list versionlog.List, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("stat %s: %w", path, err)
	}

	if info.IsDir() {
		if _, err := d.ensureRemoteParent(ctx, client, list, path); err != nil {
			return err
		}

		return d.walkLocalChildren(ctx, client, list, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("reading %s: %w", path, err)
	}

	localMD5 := reconcile.MD5Hex(data)

	id, rec, tracked := versionlog.FindByPath(list, path)
	if tracked && rec.MD5 == localMD5 {
		// Convergence latch: this write was our own earlier download
		// landing on disk, not a genuine local edit. Uploading it back
		// would cycle forever.
		return nil
	}

	parentID, err := d.ensureRemoteParent(ctx, client, list, filepath.Dir(path))
	if err != nil {
		return err
	}

	name := reconcile.FileName(path)

	if tracked {
		updated, err := client.UpdateFile(ctx, id, data)
		if err != nil {
			return fmt.Errorf("updating %s: %w", path, err)
		}

		rec.Version = updated.Version
		rec.MD5 = updated.MD5
		rec.ParentID = parentID
		rec.Path = path
		list[id] = rec

		d.logger.Info("uploaded change", slog.String("path", path), slog.String("size", humanize.Bytes(uint64(len(data)))))

		return nil
	}

	uploadName, uploadPath := name, path

	colliding, exists, err := client.GetFileByName(ctx, name, parentID)
	if err != nil {
		return fmt.Errorf("checking for name collision on %s: %w", path, err)
	}

	if exists && !colliding.Trashed && colliding.MD5 != localMD5 {
		renamedPath := filepath.Join(filepath.Dir(path), reconcile.TimestampedCopyName(path, time.Now()))

		if err := os.Rename(path, renamedPath); err != nil {
			return fmt.Errorf("renaming colliding file %s: %w", path, err)
		}

		uploadPath = renamedPath
		uploadName = reconcile.FileName(renamedPath)
		data = mustReread(uploadPath, data)
	}

	created, err := client.UploadFile(ctx, uploadName, parentID, data)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", uploadPath, err)
	}

	list[created.ID] = versionlog.Record{
		IsFolder: false,
		ParentID: parentID,
		Version:  created.Version,
		Path:     uploadPath,
		MD5:      created.MD5,
	}

	d.logger.Info("uploaded new file", slog.String("path", uploadPath), slog.String("size", humanize.Bytes(uint64(len(data)))))

	return nil
}

// mustReread re-reads a file after it was renamed out from under a
// just-taken byte slice, falling back to the original bytes (content is
// unchanged by a rename) if the re-read fails.
func mustReread(path string, fallback []byte) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}

	return data
}

// ensureRemoteParent returns the remote folder id mirroring localDir,
// creating remote folders (and log entries) for any ancestor between
// d.localRoot and localDir that isn't tracked yet.
func (d *LocalDaemon) ensureRemoteParent(ctx context.Context, client RemoteClient, list versionlog.List, localDir string) (string, error) {
	clean := filepath.Clean(localDir)
	root := filepath.Clean(d.localRoot)

	if clean == root {
		return d.rootID, nil
	}

	if id, rec, ok := versionlog.FindByPath(list, clean); ok && rec.IsFolder {
		return id, nil
	}

	parentID, err := d.ensureRemoteParent(ctx, client, list, filepath.Dir(clean))
	if err != nil {
		return "", err
	}

	name := reconcile.FileName(clean)

	existing, found, err := client.GetFileByName(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("checking for existing folder %s: %w", clean, err)
	}

	if found && existing.IsFolder() {
		list[existing.ID] = versionlog.Record{IsFolder: true, ParentID: parentID, Version: existing.Version, Path: clean}
		return existing.ID, nil
	}

	created, err := client.CreateDir(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("creating remote folder %s: %w", clean, err)
	}

	list[created.ID] = versionlog.Record{IsFolder: true, ParentID: parentID, Version: created.Version, Path: clean}

	return created.ID, nil
}

// walkLocalChildren uploads files and recurses into subfolders already
// present under localDir, in one pass. A newly created folder can arrive
// already populated (e.g. a directory moved in from outside the watched
// tree), and fsnotify delivers no separate event per child in that case —
// without this walk, such contents would never reach the remote.
func (d *LocalDaemon) walkLocalChildren(ctx context.Context, client RemoteClient, list versionlog.List, localDir string) error {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", localDir, err)
	}

	for _, entry := range entries {
		childPath := filepath.Join(localDir, entry.Name())

		if entry.IsDir() {
			if _, err := d.ensureRemoteParent(ctx, client, list, childPath); err != nil {
				return err
			}

			if err := d.walkLocalChildren(ctx, client, list, childPath); err != nil {
				return err
			}

			continue
		}

		if err := d.handleCreateOrWrite(ctx, client, list, childPath); err != nil {
			return err
		}
	}

	return nil
}

// addWatchesRecursive registers a watch on root and every directory beneath
// it: one watch per directory, since the platform inotify/kqueue/
// ReadDirectoryChangesW backends fsnotify wraps have no native
// recursive-watch mode.
func addWatchesRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return watcher.Add(path)
		}

		return nil
	})
}
