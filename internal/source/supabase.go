package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/dvloznov/ledger-sync/internal/supabase"
)

// DefaultPageSize is the number of rows requested per page.
const DefaultPageSize = 1000

// SupabaseSource reads collections through the PostgREST endpoint of a
// Supabase project.
type SupabaseSource struct {
	client   *supabase.Client
	pageSize int
	orderBy  string
}

// NewSupabaseSource pages through collections pageSize rows at a time,
// ordered by orderBy ascending so pages are stable.
func NewSupabaseSource(client *supabase.Client, pageSize int, orderBy string) *SupabaseSource {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if orderBy == "" {
		orderBy = "id"
	}
	return &SupabaseSource{client: client, pageSize: pageSize, orderBy: orderBy}
}

// Fetch implements RecordSource. PostgREST caps a page at its max-rows
// setting, so the offset advances by the rows returned and only an empty
// page ends the collection.
func (s *SupabaseSource) Fetch(ctx context.Context, collection string) ([]map[string]any, error) {
	log := logger.FromContext(ctx)

	var rows []map[string]any
	for offset := 0; ; {
		q := url.Values{}
		q.Set("select", "*")
		q.Set("order", s.orderBy+".asc")
		q.Set("limit", strconv.Itoa(s.pageSize))
		q.Set("offset", strconv.Itoa(offset))

		body, err := s.client.Get(ctx, "rest/v1/"+collection, q)
		if err != nil {
			return nil, fmt.Errorf("SupabaseSource.Fetch: %s: %w", collection, err)
		}

		page, err := decodeRows(body)
		if err != nil {
			return nil, fmt.Errorf("SupabaseSource.Fetch: %s: %w", collection, err)
		}
		log.Debug().
			Str("collection", collection).
			Int("offset", offset).
			Int("rows", len(page)).
			Msg("Fetched page")

		if len(page) == 0 {
			break
		}
		rows = append(rows, page...)
		offset += len(page)
	}
	return rows, nil
}

func decodeRows(body []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}
