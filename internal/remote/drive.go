package remote

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveService is the DocumentService backed by the Google Drive v3 API.
type DriveService struct {
	files *drive.FilesService
}

// NewDriveService creates a Drive client authorised by ts. Extra options are
// appended, e.g. option.WithEndpoint in tests.
func NewDriveService(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*DriveService, error) {
	if ts != nil {
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewDriveService: %w", err)
	}
	return &DriveService{files: svc.Files}, nil
}

// FindFolder implements DocumentService.
func (d *DriveService) FindFolder(ctx context.Context, name, parentID string) (string, bool, error) {
	id, found, err := d.findOne(ctx, folderQuery(name, parentID))
	if err != nil {
		return "", false, fmt.Errorf("FindFolder %q: %w", name, err)
	}
	return id, found, nil
}

// CreateFolder implements DocumentService.
func (d *DriveService) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	meta := &drive.File{
		Name:     name,
		MimeType: FolderMimeType,
		Parents:  []string{parentOrRoot(parentID)},
	}
	f, err := d.files.Create(meta).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("CreateFolder %q: %w", name, err)
	}
	return f.Id, nil
}

// FindFile implements DocumentService.
func (d *DriveService) FindFile(ctx context.Context, name, parentID string) (string, bool, error) {
	id, found, err := d.findOne(ctx, fileQuery(name, parentID))
	if err != nil {
		return "", false, fmt.Errorf("FindFile %q: %w", name, err)
	}
	return id, found, nil
}

// CreateFile implements DocumentService.
func (d *DriveService) CreateFile(ctx context.Context, name, parentID, mimeType string, content io.Reader) (string, error) {
	meta := &drive.File{
		Name:    name,
		Parents: []string{parentOrRoot(parentID)},
	}
	f, err := d.files.Create(meta).
		Media(content, googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("CreateFile %q: %w", name, err)
	}
	return f.Id, nil
}

func (d *DriveService) findOne(ctx context.Context, q string) (string, bool, error) {
	list, err := d.files.List().
		Q(q).
		Spaces("drive").
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", false, err
	}
	if len(list.Files) == 0 {
		return "", false, nil
	}
	return list.Files[0].Id, true, nil
}

func folderQuery(name, parentID string) string {
	return fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), FolderMimeType, escapeQuery(parentOrRoot(parentID)))
}

func fileQuery(name, parentID string) string {
	return fmt.Sprintf("name = '%s' and mimeType != '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), FolderMimeType, escapeQuery(parentOrRoot(parentID)))
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

func parentOrRoot(id string) string {
	if id == "" {
		return RootID
	}
	return id
}

var _ DocumentService = (*DriveService)(nil)
