package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

var driveQueryRe = regexp.MustCompile(`^name = '((?:[^'\\]|\\.)*)' and mimeType (=|!=) '[^']*' and '((?:[^'\\]|\\.)*)' in parents and trashed = false$`)

var queryUnescaper = strings.NewReplacer(`\\`, `\`, `\'`, `'`)

type driveItem struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
	content  []byte
}

// fakeDrive answers the subset of the Drive v3 REST API used by DriveService.
type fakeDrive struct {
	mu      sync.Mutex
	items   []*driveItem
	queries []string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/files"):
		f.list(w, r)
	case r.Method == http.MethodPost && r.URL.Query().Get("uploadType") == "multipart":
		f.upload(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/files"):
		var item driveItem
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.store(w, &item)
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.String(), http.StatusNotFound)
	}
}

func (f *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	f.queries = append(f.queries, q)
	m := driveQueryRe.FindStringSubmatch(q)
	if m == nil {
		http.Error(w, "bad query: "+q, http.StatusBadRequest)
		return
	}
	name, wantFolder, parent := queryUnescaper.Replace(m[1]), m[2] == "=", queryUnescaper.Replace(m[3])

	files := []map[string]string{}
	for _, it := range f.items {
		isFolder := it.MimeType == FolderMimeType
		if it.Name == name && isFolder == wantFolder && len(it.Parents) > 0 && it.Parents[0] == parent {
			files = append(files, map[string]string{"id": it.ID, "name": it.Name})
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"files": files})
}

func (f *fakeDrive) upload(w http.ResponseWriter, r *http.Request) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var item driveItem
	if err := json.NewDecoder(metaPart).Decode(&item); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mediaPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	item.MimeType = mediaPart.Header.Get("Content-Type")
	item.content, _ = io.ReadAll(mediaPart)
	f.store(w, &item)
}

func (f *fakeDrive) store(w http.ResponseWriter, item *driveItem) {
	item.ID = fmt.Sprintf("drive-%d", len(f.items)+1)
	f.items = append(f.items, item)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": item.ID})
}

func newFakeDriveService(t *testing.T) (*DriveService, *fakeDrive) {
	t.Helper()
	fake := &fakeDrive{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := NewDriveService(context.Background(), nil,
		option.WithEndpoint(srv.URL+"/drive/v3/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return svc, fake
}

func TestQueries_Escape(t *testing.T) {
	assert.Equal(t,
		`name = 'O\'Brien \\ Co' and mimeType = 'application/vnd.google-apps.folder' and 'root' in parents and trashed = false`,
		folderQuery(`O'Brien \ Co`, ""))
	assert.Equal(t,
		`name = 'a.pdf' and mimeType != 'application/vnd.google-apps.folder' and 'p1' in parents and trashed = false`,
		fileQuery("a.pdf", "p1"))
}

func TestDriveService_FolderLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, fake := newFakeDriveService(t)

	_, found, err := svc.FindFolder(ctx, "Kostenabrechnungen", "")
	require.NoError(t, err)
	assert.False(t, found)

	id, err := svc.CreateFolder(ctx, "Kostenabrechnungen", "")
	require.NoError(t, err)

	got, found, err := svc.FindFolder(ctx, "Kostenabrechnungen", RootID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, got)

	child, err := svc.CreateFolder(ctx, "Anna's", id)
	require.NoError(t, err)
	got, found, err = svc.FindFolder(ctx, "Anna's", id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, child, got)

	assert.Len(t, fake.queries, 3)
}

func TestDriveService_UploadAndFind(t *testing.T) {
	ctx := context.Background()
	svc, fake := newFakeDriveService(t)
	folder, err := svc.CreateFolder(ctx, "Belege", "")
	require.NoError(t, err)

	id, err := svc.CreateFile(ctx, "Beleg_1_Taxi.pdf", folder, "application/pdf", strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, found, err := svc.FindFile(ctx, "Beleg_1_Taxi.pdf", folder)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, got)

	_, found, err = svc.FindFolder(ctx, "Beleg_1_Taxi.pdf", folder)
	require.NoError(t, err)
	assert.False(t, found)

	uploaded := fake.items[len(fake.items)-1]
	assert.Equal(t, []byte("%PDF-1.7"), uploaded.content)
	assert.Equal(t, []string{folder}, uploaded.Parents)
}

func TestDriveService_ErrorsAreWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	svc, err := NewDriveService(context.Background(), nil,
		option.WithEndpoint(srv.URL+"/drive/v3/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	_, _, err = svc.FindFolder(context.Background(), "x", "")
	assert.ErrorContains(t, err, `FindFolder "x"`)
	_, err = svc.CreateFolder(context.Background(), "x", "")
	assert.ErrorContains(t, err, `CreateFolder "x"`)
}
