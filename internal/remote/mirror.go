package remote

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/dvloznov/ledger-sync/internal/syncerr"
)

// Result reports what UploadIfAbsent did.
type Result string

const (
	Uploaded Result = "uploaded"
	Skipped  Result = "skipped"
)

var contentTypes = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pdf":  "application/pdf",
}

// Mirror is the idempotent folder-resolution and upload-skip-if-exists layer
// over a DocumentService. Every error it returns is a RemoteMirrorFailure.
// One Mirror is shared by every run in the process; entities share top-level
// folders such as "Belege".
type Mirror struct {
	svc DocumentService

	mu          sync.Mutex
	folderLocks map[folderKey]*sync.Mutex
}

// NewMirror creates a mirror over svc.
func NewMirror(svc DocumentService) *Mirror {
	return &Mirror{svc: svc, folderLocks: make(map[folderKey]*sync.Mutex)}
}

func (m *Mirror) folderLock(key folderKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.folderLocks[key]
	if !ok {
		l = &sync.Mutex{}
		m.folderLocks[key] = l
	}
	return l
}

// ResolveFolder returns the id of the folder named name under parentID,
// creating it if absent. An empty parentID means the store root. Calls for
// the same (name, parent) are serialised, so concurrent runs never create
// the folder twice.
func (m *Mirror) ResolveFolder(ctx context.Context, name, parentID string) (string, error) {
	l := m.folderLock(folderKey{name: name, parent: parentOrRoot(parentID)})
	l.Lock()
	defer l.Unlock()

	id, found, err := m.svc.FindFolder(ctx, name, parentID)
	if err != nil {
		return "", syncerr.New(syncerr.RemoteMirrorFailure, err)
	}
	if found {
		return id, nil
	}

	id, err = m.svc.CreateFolder(ctx, name, parentID)
	if err != nil {
		return "", syncerr.New(syncerr.RemoteMirrorFailure, err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("folder", name).Str("parent_id", parentID).Str("folder_id", id).Msg("Created remote folder")
	return id, nil
}

// Exists reports whether an object named name is directly under folderID.
func (m *Mirror) Exists(ctx context.Context, name, folderID string) (bool, error) {
	_, found, err := m.svc.FindFile(ctx, name, folderID)
	if err != nil {
		return false, syncerr.New(syncerr.RemoteMirrorFailure, err)
	}
	return found, nil
}

// UploadIfAbsent uploads localPath as remoteName into folderID unless an
// object with that name is already there. Check and upload are not atomic.
func (m *Mirror) UploadIfAbsent(ctx context.Context, localPath, remoteName, folderID string) (Result, error) {
	log := logger.FromContext(ctx)

	exists, err := m.Exists(ctx, remoteName, folderID)
	if err != nil {
		return "", err
	}
	if exists {
		log.Debug().Str("remote_name", remoteName).Str("folder_id", folderID).Msg("Remote file exists, skipping upload")
		return Skipped, nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", syncerr.New(syncerr.RemoteMirrorFailure, fmt.Errorf("UploadIfAbsent: open %q: %w", localPath, err))
	}
	defer f.Close()

	id, err := m.svc.CreateFile(ctx, remoteName, folderID, ContentType(remoteName), f)
	if err != nil {
		return "", syncerr.New(syncerr.RemoteMirrorFailure, err)
	}
	log.Info().Str("remote_name", remoteName).Str("folder_id", folderID).Str("file_id", id).Msg("Uploaded file")
	return Uploaded, nil
}

// ContentType guesses the upload MIME type from the file name.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type folderKey struct {
	name   string
	parent string
}

// FolderResolver memoizes (name, parent) → folder id for one run on top of
// the Mirror's process-wide find-or-create lock.
type FolderResolver struct {
	mirror *Mirror

	mu    sync.Mutex
	cache map[folderKey]string
}

// NewFolderResolver creates an empty run-scoped resolver.
func NewFolderResolver(m *Mirror) *FolderResolver {
	return &FolderResolver{mirror: m, cache: make(map[folderKey]string)}
}

// Resolve returns the folder id, hitting the remote store only on first use.
func (r *FolderResolver) Resolve(ctx context.Context, name, parentID string) (string, error) {
	key := folderKey{name: name, parent: parentOrRoot(parentID)}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.cache[key]; ok {
		return id, nil
	}
	id, err := r.mirror.ResolveFolder(ctx, name, key.parent)
	if err != nil {
		return "", err
	}
	r.cache[key] = id
	return id, nil
}

// ResolvePath resolves each segment under the previous one, starting at the root.
func (r *FolderResolver) ResolvePath(ctx context.Context, segments []string) (string, error) {
	parent := RootID
	for _, name := range segments {
		id, err := r.Resolve(ctx, name, parent)
		if err != nil {
			return "", err
		}
		parent = id
	}
	return parent, nil
}

// Len returns the number of memoized folders.
func (r *FolderResolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
