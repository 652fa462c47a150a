package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// BigQuerySource reads collections as tables of one BigQuery dataset.
type BigQuerySource struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewBigQuerySource creates a source with its own client.
func NewBigQuerySource(ctx context.Context, projectID, datasetID string) (*BigQuerySource, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQuerySource: creating client: %w", err)
	}
	return NewBigQuerySourceWithClient(client, projectID, datasetID), nil
}

// NewBigQuerySourceWithClient creates a source sharing client.
func NewBigQuerySourceWithClient(client *bigquery.Client, projectID, datasetID string) *BigQuerySource {
	return &BigQuerySource{client: client, projectID: projectID, datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (s *BigQuerySource) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Fetch implements RecordSource.
func (s *BigQuerySource) Fetch(ctx context.Context, collection string) ([]map[string]any, error) {
	q := s.client.Query(TableQuery(s.projectID, s.datasetID, collection))
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("BigQuerySource.Fetch: reading query: %w", err)
	}

	var rows []map[string]any
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("BigQuerySource.Fetch: iterating: %w", err)
		}
		rows = append(rows, flatten(row))
	}
	return rows, nil
}

// TableQuery selects every row of a collection table.
func TableQuery(projectID, datasetID, collection string) string {
	return fmt.Sprintf("SELECT * FROM `%s.%s.%s`", projectID, datasetID, collection)
}

func flatten(row map[string]bigquery.Value) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		if r, ok := v.(*big.Rat); ok {
			// NUMERIC and BIGNUMERIC columns.
			out[k] = json.Number(trimZeros(r.FloatString(9)))
			continue
		}
		out[k] = v
	}
	return out
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	return strings.TrimSuffix(strings.TrimRight(s, "0"), ".")
}
