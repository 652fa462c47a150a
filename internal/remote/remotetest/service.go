// Package remotetest provides an in-memory DocumentService for tests.
package remotetest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/ledger-sync/internal/remote"
)

// Object is one stored folder or file.
type Object struct {
	ID       string
	Name     string
	Parent   string
	Folder   bool
	MimeType string
	Content  []byte
}

// Service is a DocumentService that keeps objects in memory and counts calls.
// Fail, if set, is consulted before every call; a non-nil error is returned as is.
// LookupDelay is slept between reading the store and returning from a find,
// standing in for network latency.
type Service struct {
	Fail        func(op, name string) error
	LookupDelay time.Duration

	mu      sync.Mutex
	objects []*Object
	calls   map[string]int
	next    int
}

// New creates an empty store.
func New() *Service {
	return &Service{calls: make(map[string]int)}
}

func (s *Service) begin(op, name string) error {
	s.calls[op]++
	if s.Fail != nil {
		return s.Fail(op, name)
	}
	return nil
}

func (s *Service) find(name, parent string, folder bool) (string, bool) {
	parent = orRoot(parent)
	for _, o := range s.objects {
		if o.Name == name && o.Parent == parent && o.Folder == folder {
			return o.ID, true
		}
	}
	return "", false
}

func (s *Service) add(o *Object) string {
	s.next++
	o.ID = fmt.Sprintf("id-%d", s.next)
	o.Parent = orRoot(o.Parent)
	s.objects = append(s.objects, o)
	return o.ID
}

// FindFolder implements remote.DocumentService.
func (s *Service) FindFolder(_ context.Context, name, parentID string) (string, bool, error) {
	s.mu.Lock()
	if err := s.begin("FindFolder", name); err != nil {
		s.mu.Unlock()
		return "", false, err
	}
	id, ok := s.find(name, parentID, true)
	s.mu.Unlock()

	time.Sleep(s.LookupDelay)
	return id, ok, nil
}

// CreateFolder implements remote.DocumentService.
func (s *Service) CreateFolder(_ context.Context, name, parentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("CreateFolder", name); err != nil {
		return "", err
	}
	return s.add(&Object{Name: name, Parent: parentID, Folder: true, MimeType: remote.FolderMimeType}), nil
}

// FindFile implements remote.DocumentService.
func (s *Service) FindFile(_ context.Context, name, parentID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("FindFile", name); err != nil {
		return "", false, err
	}
	id, ok := s.find(name, parentID, false)
	return id, ok, nil
}

// CreateFile implements remote.DocumentService.
func (s *Service) CreateFile(_ context.Context, name, parentID, mimeType string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("CreateFile", name); err != nil {
		return "", err
	}
	return s.add(&Object{Name: name, Parent: parentID, MimeType: mimeType, Content: data}), nil
}

// Calls returns how often op was invoked.
func (s *Service) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Lookup walks a slash-separated path from the root and returns the object.
func (s *Service) Lookup(path string) (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := remote.RootID
	segments := strings.Split(path, "/")
	for i, name := range segments {
		last := i == len(segments)-1
		hit := s.child(parent, name, last)
		if hit == nil {
			return nil, false
		}
		if last {
			cp := *hit
			return &cp, true
		}
		parent = hit.ID
	}
	return nil, false
}

// child prefers a file when allowFile is set, else returns the folder.
func (s *Service) child(parent, name string, allowFile bool) *Object {
	var folder *Object
	for _, o := range s.objects {
		if o.Name != name || o.Parent != parent {
			continue
		}
		if !o.Folder && allowFile {
			return o
		}
		if o.Folder && folder == nil {
			folder = o
		}
	}
	return folder
}

// Paths lists every object as a slash-separated path, folders suffixed with "/".
func (s *Service) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[string]*Object, len(s.objects))
	for _, o := range s.objects {
		byID[o.ID] = o
	}
	var out []string
	for _, o := range s.objects {
		p := o.Name
		for parent := byID[o.Parent]; parent != nil; parent = byID[parent.Parent] {
			p = parent.Name + "/" + p
		}
		if o.Folder {
			p += "/"
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func orRoot(id string) string {
	if id == "" {
		return remote.RootID
	}
	return id
}

var _ remote.DocumentService = (*Service)(nil)
