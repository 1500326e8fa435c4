package engine

import (
	"context"
	"io"

	"github.com/tonimelisma/drivesync/internal/driveapi"
)

// RemoteClient is the subset of driveapi.Client the remote and local
// daemons call through — defined at the consumer so either daemon can be
// tested against a fake without reaching into the HTTP layer.
type RemoteClient interface {
	ListFiles(ctx context.Context, q string) ([]driveapi.FileRecord, error)
	GetFile(ctx context.Context, id string) (driveapi.FileRecord, error)
	GetFileByName(ctx context.Context, name, parentID string) (driveapi.FileRecord, bool, error)
	DownloadFile(ctx context.Context, id string) (io.ReadCloser, error)
	UploadFile(ctx context.Context, name, parentID string, data []byte) (driveapi.FileRecord, error)
	UpdateFile(ctx context.Context, id string, data []byte) (driveapi.FileRecord, error)
	CreateDir(ctx context.Context, name, parentID string) (driveapi.FileRecord, error)
	RenameFile(ctx context.Context, id, newName, oldParentID, newParentID string) (driveapi.FileRecord, error)
	DeleteFile(ctx context.Context, id string) error
}

// TokenRefresher forces an out-of-band token refresh, independent of
// expiry. Both daemons call this once after an Unauthorized response and
// continue to their next cycle rather than retrying immediately.
type TokenRefresher interface {
	Refresh(ctx context.Context) error
}
