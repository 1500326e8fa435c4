package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tonimelisma/drivesync/internal/driveapi"
	"github.com/tonimelisma/drivesync/internal/versionlog"
)

// DefaultPollInterval is how often RemoteDaemon walks the remote tree when
// no override is configured.
const DefaultPollInterval = 10 * time.Second

// RemoteDaemon walks the remote tree top-down on a fixed interval, pulling
// down anything that changed since the last cycle, per the version recorded
// in the log.
type RemoteDaemon struct {
	logGuard    *Guard[*versionlog.Log]
	clientGuard *Guard[RemoteClient]
	refresher   TokenRefresher
	rootID      string
	localRoot   string
	pollInterval time.Duration
	logger      *slog.Logger
}

// NewRemoteDaemon constructs a RemoteDaemon. pollInterval of zero selects
// DefaultPollInterval.
func NewRemoteDaemon(
	logGuard *Guard[*versionlog.Log],
	clientGuard *Guard[RemoteClient],
	refresher TokenRefresher,
	rootID, localRoot string,
	pollInterval time.Duration,
	logger *slog.Logger,
) *RemoteDaemon {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &RemoteDaemon{
		logGuard:     logGuard,
		clientGuard:  clientGuard,
		refresher:    refresher,
		rootID:       rootID,
		localRoot:    localRoot,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run loops until ctx is canceled, walking the remote tree once per
// pollInterval. A cycle that fails for a reason other than context
// cancellation or a failed token refresh (ErrRefreshFailed, which ends Run)
// is logged and retried on the next tick rather than terminating the
// daemon.
func (d *RemoteDaemon) Run(ctx context.Context) error {
	for {
		if err := d.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if errors.Is(err, ErrRefreshFailed) {
				return err
			}

			d.logger.Error("remote sync cycle failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

func (d *RemoteDaemon) runCycle(ctx context.Context) error {
	return withGuards(ctx, d.logGuard, d.clientGuard, func(log *versionlog.Log, client RemoteClient) error {
		list, err := log.List(ctx)
		if err != nil {
			return err
		}

		err = d.syncDir(ctx, client, d.rootID, "", d.localRoot, list)
		if err != nil {
			if errors.Is(err, driveapi.ErrUnauthorized) {
				d.logger.Warn("remote request unauthorized, refreshing token")

				if rerr := d.refresher.Refresh(ctx); rerr != nil {
					return fmt.Errorf("%w: %v", ErrRefreshFailed, rerr)
				}

				return nil
			}

			return err
		}

		return log.Save(ctx, list)
	})
}

// syncDir reconciles one remote directory (identified by dirID, mirrored at
// localPath) against list, recursing into subfolders. parentID is dirID's
// own parent, recorded in list so later cycles can detect dirID's own
// rename/move.
func (d *RemoteDaemon) syncDir(
	ctx context.Context, client RemoteClient, dirID, parentID, localPath string, list versionlog.List,
) error {
	dirInfo, err := client.GetFile(ctx, dirID)
	if err != nil {
		return fmt.Errorf("fetching folder %s: %w", dirID, err)
	}

	existing, tracked := list[dirID]

	if tracked && existing.Version == dirInfo.Version {
		// Folder-version shortcut: nothing under this subtree changed
		// since the last cycle that observed it.
		return nil
	}

	if err := d.ensureLocalDir(existing, tracked, localPath); err != nil {
		return err
	}

	children, err := client.ListFiles(ctx, fmt.Sprintf("'%s' in parents", dirID))
	if err != nil {
		return fmt.Errorf("listing folder %s: %w", dirID, err)
	}

	for _, child := range children {
		if child.Trashed {
			d.removeTracked(list, child.ID)
			continue
		}

		childPath := filepath.Join(localPath, child.Name)

		if child.IsFolder() {
			if err := d.syncDir(ctx, client, child.ID, dirID, childPath, list); err != nil {
				return err
			}

			continue
		}

		if err := d.syncFile(ctx, client, child, dirID, childPath, list); err != nil {
			return err
		}
	}

	list[dirID] = versionlog.Record{
		IsFolder: true,
		ParentID: parentID,
		Version:  dirInfo.Version,
		Path:     localPath,
	}

	return nil
}

// ensureLocalDir makes localPath exist, renaming the directory's prior
// location into place when the folder was renamed or moved remotely
// instead of recreating it, so unchanged children underneath survive.
func (d *RemoteDaemon) ensureLocalDir(existing versionlog.Record, tracked bool, localPath string) error {
	if tracked && existing.Path != "" && existing.Path != localPath {
		if _, err := os.Stat(existing.Path); err == nil {
			if err := os.Rename(existing.Path, localPath); err != nil {
				return fmt.Errorf("renaming directory %s to %s: %w", existing.Path, localPath, err)
			}

			return nil
		}
	}

	if err := os.MkdirAll(localPath, 0o755); err != nil {
		return fmt.Errorf("creating local directory %s: %w", localPath, err)
	}

	return nil
}

// syncFile reconciles one remote file against its local mirror, following
// a prior path if the file moved and downloading content when its hash
// changed.
func (d *RemoteDaemon) syncFile(
	ctx context.Context, client RemoteClient, file driveapi.FileRecord, parentID, targetPath string, list versionlog.List,
) error {
	existing, tracked := list[file.ID]

	switch {
	case tracked && existing.MD5 != "" && existing.MD5 == file.MD5:
		// Content unchanged: this is a rename/move only, so rename the
		// local copy in place rather than deleting it and re-downloading.
		// A missing source is not an error: a renamed parent folder has
		// already carried the file to targetPath.
		if existing.Path != targetPath {
			if err := os.Rename(existing.Path, targetPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("renaming %s to %s: %w", existing.Path, targetPath, err)
			}
		}
	default:
		if err := d.downloadTo(ctx, client, file, targetPath); err != nil {
			return err
		}

		// Content changed and the file also moved: the stale copy at the
		// old path is now orphaned, since downloadTo wrote the fresh
		// content under targetPath instead.
		if tracked && existing.Path != targetPath {
			if _, err := os.Stat(existing.Path); err == nil {
				_ = os.Remove(existing.Path)
			}
		}
	}

	list[file.ID] = versionlog.Record{
		IsFolder: false,
		ParentID: parentID,
		Version:  file.Version,
		Path:     targetPath,
		MD5:      file.MD5,
	}

	return nil
}

func (d *RemoteDaemon) downloadTo(ctx context.Context, client RemoteClient, file driveapi.FileRecord, targetPath string) error {
	body, err := client.DownloadFile(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", file.Name, err)
	}
	defer body.Close()

	n, err := writeFileAtomic(targetPath, body)
	if err != nil {
		return fmt.Errorf("writing %s: %w", targetPath, err)
	}

	d.logger.Info("downloaded file",
		slog.String("name", file.Name),
		slog.String("path", targetPath),
		slog.String("size", humanize.Bytes(uint64(n))),
	)

	return nil
}

// removeTracked removes a trashed remote object's local mirror (file or
// whole subtree) and drops it from the log. There is no separate prune
// pass: deletions are caught only here, via the tracking entry an earlier
// cycle recorded for the same id.
func (d *RemoteDaemon) removeTracked(list versionlog.List, id string) {
	rec, ok := list[id]
	if !ok {
		return
	}

	_ = os.RemoveAll(rec.Path)
	delete(list, id)
}

// writeFileAtomic streams r into path via a temp file in the same
// directory, fsync, then rename — mirroring the version log's own
// write-then-rename idiom so a crash mid-download never leaves a partial
// file visible under its final name.
func writeFileAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, ".drivesync-*.tmp")
	if err != nil {
		return 0, err
	}

	tmpPath := tmp.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return n, err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return n, err
	}

	if err := tmp.Close(); err != nil {
		return n, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return n, err
	}

	tmpPath = ""

	return n, nil
}
