package objectstore

import (
	"context"
	"fmt"
	"strings"
)

// Store returns the raw bytes of an attachment object.
type Store interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Router sends gs:// references to the GCS store and everything else to the
// default store.
type Router struct {
	Default Store
	GCS     Store
}

// Fetch implements Store.
func (r *Router) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if IsGCSURI(ref) {
		if r.GCS == nil {
			return nil, fmt.Errorf("Router.Fetch: no GCS store configured for %s", ref)
		}
		return r.GCS.Fetch(ctx, ref)
	}
	if r.Default == nil {
		return nil, fmt.Errorf("Router.Fetch: no object store configured for %s", ref)
	}
	return r.Default.Fetch(ctx, ref)
}

// IsGCSURI reports whether ref is a gs:// URI.
func IsGCSURI(ref string) bool {
	return strings.HasPrefix(ref, "gs://")
}
