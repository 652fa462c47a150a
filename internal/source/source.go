package source

import (
	"context"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

// RecordSource returns every record of a named collection as flat key/value maps.
type RecordSource interface {
	Fetch(ctx context.Context, collection string) ([]map[string]any, error)
}

// Records wraps raw rows as domain records keyed by idField.
func Records(rows []map[string]any, idField string) []domain.Record {
	out := make([]domain.Record, len(rows))
	for i, row := range rows {
		out[i] = domain.NewRecord(idField, row)
	}
	return out
}
