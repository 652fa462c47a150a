package objectstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-sync/internal/supabase"
)

// SupabaseStore reads objects from Supabase Storage. References are
// "<bucket>/<object path>" as stored in the record columns.
type SupabaseStore struct {
	client *supabase.Client
}

// NewSupabaseStore creates a store over client.
func NewSupabaseStore(client *supabase.Client) *SupabaseStore {
	return &SupabaseStore{client: client}
}

// Fetch implements Store.
func (s *SupabaseStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimLeft(strings.TrimSpace(ref), "/")
	if ref == "" {
		return nil, fmt.Errorf("SupabaseStore.Fetch: empty reference")
	}
	data, err := s.client.Get(ctx, "storage/v1/object/"+ref, nil)
	if err != nil {
		return nil, fmt.Errorf("SupabaseStore.Fetch: %w", err)
	}
	return data, nil
}
