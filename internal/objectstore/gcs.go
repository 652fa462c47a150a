package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSStore reads gs://bucket/object references from Google Cloud Storage
// using Application Default Credentials.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a store with its own storage client.
func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: create storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// WithBucket makes plain references resolve as objects in bucket.
func (s *GCSStore) WithBucket(bucket string) *GCSStore {
	s.bucket = bucket
	return s
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Fetch implements Store.
func (s *GCSStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(s.uri(ref))
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSStore.Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("GCSStore.Fetch: reading bytes: %w", err)
	}
	return data, nil
}

func (s *GCSStore) uri(ref string) string {
	if IsGCSURI(ref) || s.bucket == "" {
		return ref
	}
	return "gs://" + s.bucket + "/" + strings.TrimLeft(ref, "/")
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCSURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
