package engine

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/tonimelisma/drivesync/internal/driveapi"
)

// fakeClient is an in-memory RemoteClient double keyed by id, used by both
// daemons' tests. It never touches the network.
type fakeClient struct {
	mu      sync.Mutex
	files   map[string]driveapi.FileRecord
	content map[string][]byte
	nextID  int
	unauth  bool // next ListFiles/GetFile/GetFileByName call fails with ErrUnauthorized, then clears
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		files:   map[string]driveapi.FileRecord{},
		content: map[string][]byte{},
	}
}

func (f *fakeClient) put(rec driveapi.FileRecord, data []byte) driveapi.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[rec.ID] = rec

	if data != nil {
		f.content[rec.ID] = data
	}

	return rec
}

func (f *fakeClient) checkUnauth() error {
	if f.unauth {
		f.unauth = false
		return driveapi.ErrUnauthorized
	}

	return nil
}

func (f *fakeClient) ListFiles(ctx context.Context, q string) ([]driveapi.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkUnauth(); err != nil {
		return nil, err
	}

	parent := extractParentsClause(q)
	name := extractNameClause(q)

	var out []driveapi.FileRecord

	for _, rec := range f.files {
		if parent != "" && rec.ParentID != parent {
			continue
		}

		if name != "" && rec.Name != name {
			continue
		}

		out = append(out, rec)
	}

	return out, nil
}

func (f *fakeClient) GetFile(ctx context.Context, id string) (driveapi.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkUnauth(); err != nil {
		return driveapi.FileRecord{}, err
	}

	rec, ok := f.files[id]
	if !ok {
		return driveapi.FileRecord{}, driveapi.ErrNotFound
	}

	return rec, nil
}

func (f *fakeClient) GetFileByName(ctx context.Context, name, parentID string) (driveapi.FileRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkUnauth(); err != nil {
		return driveapi.FileRecord{}, false, err
	}

	for _, rec := range f.files {
		if rec.Name == name && rec.ParentID == parentID && !rec.Trashed {
			return rec, true, nil
		}
	}

	return driveapi.FileRecord{}, false, nil
}

func (f *fakeClient) DownloadFile(ctx context.Context, id string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.content[id]
	if !ok {
		return nil, driveapi.ErrNotFound
	}

	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (f *fakeClient) UploadFile(ctx context.Context, name, parentID string, data []byte) (driveapi.FileRecord, error) {
	f.mu.Lock()
	f.nextID++
	id := "gen-" + strconv.Itoa(f.nextID)
	f.mu.Unlock()

	rec := driveapi.FileRecord{ID: id, Name: name, ParentID: parentID, Version: "1", MD5: md5OrEmpty(data), MimeType: "text/plain"}

	return f.put(rec, data), nil
}

func (f *fakeClient) UpdateFile(ctx context.Context, id string, data []byte) (driveapi.FileRecord, error) {
	f.mu.Lock()
	rec, ok := f.files[id]
	f.mu.Unlock()

	if !ok {
		return driveapi.FileRecord{}, driveapi.ErrNotFound
	}

	nv, _ := strconv.Atoi(rec.Version)
	rec.Version = strconv.Itoa(nv + 1)
	rec.MD5 = md5OrEmpty(data)

	return f.put(rec, data), nil
}

func (f *fakeClient) CreateDir(ctx context.Context, name, parentID string) (driveapi.FileRecord, error) {
	f.mu.Lock()
	f.nextID++
	id := "dir-" + strconv.Itoa(f.nextID)
	f.mu.Unlock()

	rec := driveapi.FileRecord{ID: id, Name: name, ParentID: parentID, Version: "1", MimeType: driveapi.FolderMimeType}

	return f.put(rec, nil), nil
}

func (f *fakeClient) RenameFile(ctx context.Context, id, newName, oldParentID, newParentID string) (driveapi.FileRecord, error) {
	f.mu.Lock()
	rec, ok := f.files[id]
	f.mu.Unlock()

	if !ok {
		return driveapi.FileRecord{}, driveapi.ErrNotFound
	}

	rec.Name = newName
	if newParentID != "" {
		rec.ParentID = newParentID
	}

	nv, _ := strconv.Atoi(rec.Version)
	rec.Version = strconv.Itoa(nv + 1)

	return f.put(rec, nil), nil
}

func (f *fakeClient) DeleteFile(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.files, id)
	delete(f.content, id)

	return nil
}

func md5OrEmpty(data []byte) string {
	return fmt.Sprintf("md5-%x", data)
}

// noopRefresher satisfies TokenRefresher for tests that never trigger
// Unauthorized.
type noopRefresher struct{}

func (noopRefresher) Refresh(ctx context.Context) error { return nil }

func extractParentsClause(q string) string {
	const marker = "' in parents"

	idx := strings.Index(q, marker)
	if idx < 0 {
		return ""
	}

	start := strings.LastIndex(q[:idx], "'")

	return q[start+1 : idx]
}

func extractNameClause(q string) string {
	const marker = "name = '"

	idx := strings.Index(q, marker)
	if idx < 0 {
		return ""
	}

	rest := q[idx+len(marker):]

	end := strings.Index(rest, "'")
	if end < 0 {
		return ""
	}

	return rest[:end]
}
