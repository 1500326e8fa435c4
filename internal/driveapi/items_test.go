package driveapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListFiles_PaginatesAndDecodes(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++

		if calls == 1 {
			w.Write([]byte(`{"files":[{"id":"1","name":"a","mimeType":"text/plain","version":"1","md5Checksum":"abc"}],"nextPageToken":"p2"}`))
			return
		}

		w.Write([]byte(`{"files":[{"id":"2","name":"b","mimeType":"application/vnd.google-apps.folder","version":"2","parents":["root"]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	files, err := c.ListFiles(context.Background(), "trashed = false")
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "1", files[0].ID)
	require.Equal(t, "abc", files[0].MD5)
	require.False(t, files[0].IsFolder())
	require.Equal(t, "2", files[1].ID)
	require.True(t, files[1].IsFolder())
	require.Equal(t, "root", files[1].ParentID)
	require.Equal(t, 2, calls)
}

func TestGetFileByName_NoMatchReturnsOkFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"files":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	_, ok, err := c.GetFileByName(context.Background(), "missing.txt", "parent1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreateDir_SendsFolderMimeType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.Contains(t, string(body), FolderMimeType)
		w.Write([]byte(`{"id":"newid","name":"Photos","mimeType":"application/vnd.google-apps.folder","version":"1"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	rec, err := c.CreateDir(context.Background(), "Photos", "parent1")
	require.NoError(t, err)
	require.Equal(t, "newid", rec.ID)
	require.True(t, rec.IsFolder())
}

func TestEscapeQueryLiteral(t *testing.T) {
	require.Equal(t, `O\'Brien`, EscapeQueryLiteral(`O'Brien`))
}
