package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivesync/internal/driveapi"
	"github.com/tonimelisma/drivesync/internal/reconcile"
	"github.com/tonimelisma/drivesync/internal/versionlog"
)

func newTestLocalDaemon(localRoot string) *LocalDaemon {
	return NewLocalDaemon(nil, nil, noopRefresher{}, "root", localRoot, 0, nil)
}

func TestLocalDaemon_CreateUploadsNewFile(t *testing.T) {
	localRoot := t.TempDir()
	client := newFakeClient()
	client.put(driveapi.FileRecord{ID: "root", Name: "Sync", MimeType: driveapi.FolderMimeType, Version: "1"}, nil)

	path := filepath.Join(localRoot, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	d := newTestLocalDaemon(localRoot)
	list := versionlog.List{}
	ctx := context.Background()

	require.NoError(t, d.handleCreateOrWrite(ctx, client, list, path))

	var found bool
	for _, rec := range list {
		if rec.Path == path {
			found = true
			require.Equal(t, "root", rec.ParentID)
		}
	}
	require.True(t, found)
}

func TestLocalDaemon_UploadSuppressedWhenMD5Matches(t *testing.T) {
	localRoot := t.TempDir()
	client := newFakeClient()

	path := filepath.Join(localRoot, "note.txt")
	data := []byte("hello")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	d := newTestLocalDaemon(localRoot)

	// Log already reflects this exact content, as if the remote daemon had
	// just downloaded it — this Write event is the fsnotify echo of that
	// download, not a genuine local edit.
	list := versionlog.List{"file1": {Path: path, MD5: reconcile.MD5Hex(data)}}

	require.NoError(t, d.handleCreateOrWrite(context.Background(), client, list, path))

	require.Empty(t, client.files, "no upload should have been issued")
}

func TestLocalDaemon_CollisionRenamesLocalCopyBeforeUpload(t *testing.T) {
	localRoot := t.TempDir()
	client := newFakeClient()
	client.put(driveapi.FileRecord{ID: "root", Name: "Sync", MimeType: driveapi.FolderMimeType, Version: "1"}, nil)
	// An existing, unrelated remote file of the same name with different content.
	client.put(driveapi.FileRecord{ID: "existing", Name: "note.txt", ParentID: "root", MimeType: "text/plain", Version: "1", MD5: "different"}, []byte("remote version"))

	path := filepath.Join(localRoot, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("local version"), 0o600))

	d := newTestLocalDaemon(localRoot)
	list := versionlog.List{}

	require.NoError(t, d.handleCreateOrWrite(context.Background(), client, list, path))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "original path should have been renamed away")

	entries, err := os.ReadDir(localRoot)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Name(), "note.txt")
	require.NotEqual(t, "note.txt", entries[0].Name())
}

func TestLocalDaemon_RemoveDeletesRemoteAndLogEntry(t *testing.T) {
	localRoot := t.TempDir()
	client := newFakeClient()
	client.put(driveapi.FileRecord{ID: "file1", Name: "note.txt", ParentID: "root"}, nil)

	path := filepath.Join(localRoot, "note.txt")

	d := newTestLocalDaemon(localRoot)
	list := versionlog.List{"file1": {Path: path}}

	require.NoError(t, d.handleRemove(context.Background(), client, list, path))

	_, ok := list["file1"]
	require.False(t, ok)
	_, ok = client.files["file1"]
	require.False(t, ok)
}

func TestLocalDaemon_EnsureRemoteParentCreatesMissingAncestors(t *testing.T) {
	localRoot := t.TempDir()
	client := newFakeClient()
	client.put(driveapi.FileRecord{ID: "root", Name: "Sync", MimeType: driveapi.FolderMimeType, Version: "1"}, nil)

	nested := filepath.Join(localRoot, "a", "b")

	d := newTestLocalDaemon(localRoot)
	list := versionlog.List{}

	id, err := d.ensureRemoteParent(context.Background(), client, list, nested)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, ok := client.files[id]
	require.True(t, ok)
	require.Equal(t, "b", rec.Name)

	parentRec, ok := list[rec.ParentID]
	require.True(t, ok)
	require.Equal(t, filepath.Join(localRoot, "a"), parentRec.Path)
}

func TestLocalDaemon_CreateFolderWalksAlreadyPresentChildren(t *testing.T) {
	localRoot := t.TempDir()
	client := newFakeClient()
	client.put(driveapi.FileRecord{ID: "root", Name: "Sync", MimeType: driveapi.FolderMimeType, Version: "1"}, nil)

	// A directory that appears already populated, as if moved in from
	// outside the watched tree in one go — fsnotify delivers only the
	// folder's own Create event, never one per child.
	newDir := filepath.Join(localRoot, "photos")
	require.NoError(t, os.MkdirAll(filepath.Join(newDir, "2026"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(newDir, "cover.jpg"), []byte("jpeg-bytes"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(newDir, "2026", "trip.jpg"), []byte("more-bytes"), 0o600))

	d := newTestLocalDaemon(localRoot)
	list := versionlog.List{}

	require.NoError(t, d.handleCreateOrWrite(context.Background(), client, list, newDir))

	_, coverID, ok := findByName(client, "cover.jpg")
	require.True(t, ok, "top-level file under the new folder must have been uploaded")
	require.Equal(t, []byte("jpeg-bytes"), client.content[coverID])

	_, tripID, ok := findByName(client, "trip.jpg")
	require.True(t, ok, "nested file under the new folder must have been uploaded")
	require.Equal(t, []byte("more-bytes"), client.content[tripID])
}

func findByName(client *fakeClient, name string) (driveapi.FileRecord, string, bool) {
	for id, rec := range client.files {
		if rec.Name == name {
			return rec, id, true
		}
	}

	return driveapi.FileRecord{}, "", false
}
