package remote

import (
	"context"
	"io"
)

const (
	// FolderMimeType marks Drive folders.
	FolderMimeType = "application/vnd.google-apps.folder"
	// RootID addresses the top of the user's drive.
	RootID = "root"
)

// DocumentService defines the operations RemoteMirror needs from a
// hierarchical document store. Lookups match the exact name directly under
// parentID and ignore trashed items.
type DocumentService interface {
	// FindFolder returns the id of the folder named name under parentID.
	FindFolder(ctx context.Context, name, parentID string) (id string, found bool, err error)

	// CreateFolder creates a folder and returns its id.
	CreateFolder(ctx context.Context, name, parentID string) (string, error)

	// FindFile returns the id of the non-folder object named name under parentID.
	FindFile(ctx context.Context, name, parentID string) (id string, found bool, err error)

	// CreateFile uploads content as a new object and returns its id.
	CreateFile(ctx context.Context, name, parentID, mimeType string, content io.Reader) (string, error)
}
