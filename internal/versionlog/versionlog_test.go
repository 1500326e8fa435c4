package versionlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLog_ColdStart(t *testing.T) {
	dir := t.TempDir()
	log := New(filepath.Join(dir, "versions.json"), nil)

	list, err := log.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestLog_CorruptFileIsTreatedAsColdStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "versions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	log := New(path, nil)

	list, err := log.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestLog_SaveThenList_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	log := New(filepath.Join(dir, "versions.json"), nil)
	ctx := context.Background()

	want := List{
		"id1": {IsFolder: true, ParentID: "", Version: "1", Path: dir},
		"id2": {IsFolder: false, ParentID: "id1", Version: "3", Path: filepath.Join(dir, "a.txt"), MD5: "abc123"},
	}

	require.NoError(t, log.Save(ctx, want))

	got, err := log.List(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLog_SaveLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	log := New(filepath.Join(dir, "versions.json"), nil)

	require.NoError(t, log.Save(context.Background(), List{"a": {Version: "1"}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "versions.json", entries[0].Name())
}

func TestFindByPath(t *testing.T) {
	list := List{
		"id1": {Path: "/root/a"},
		"id2": {Path: "/root/b"},
	}

	id, rec, ok := FindByPath(list, "/root/b")
	require.True(t, ok)
	require.Equal(t, "id2", id)
	require.Equal(t, "/root/b", rec.Path)

	_, _, ok = FindByPath(list, "/root/missing")
	require.False(t, ok)
}
