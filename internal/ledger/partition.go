package ledger

import (
	"context"
	"sort"
	"strings"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/dvloznov/ledger-sync/internal/schema"
	"github.com/dvloznov/ledger-sync/internal/syncerr"
)

// Group is the ordered subsequence of records sharing one LedgerKey.
type Group struct {
	Key     domain.LedgerKey
	Records []domain.Record
}

// Partition groups records by (group field, period of the period field).
// Order within a group follows source order; groups are sorted by key.
// Records with an unparsable timestamp or no group value are skipped with a
// warning. If no record carries the period field at all the schema is
// misconfigured and the whole partition fails.
func Partition(ctx context.Context, s *schema.EntitySchema, records []domain.Record) ([]Group, error) {
	log := logger.FromContext(ctx)

	if len(records) == 0 {
		return nil, nil
	}

	present := false
	for _, r := range records {
		if r.Has(s.PeriodField) {
			present = true
			break
		}
	}
	if !present {
		return nil, syncerr.Newf(syncerr.SchemaMisconfigured,
			"period field %q is absent from all %d records", s.PeriodField, len(records))
	}

	index := make(map[domain.LedgerKey]int)
	var groups []Group
	for _, r := range records {
		ts, err := domain.ParseTimestamp(r.Value(s.PeriodField))
		if err != nil {
			log.Warn().Err(err).
				Str("entity", s.Name).
				Str("record_id", r.ID).
				Str("field", s.PeriodField).
				Msg("Skipping record with bad timestamp")
			continue
		}
		group := strings.TrimSpace(r.String(s.GroupField))
		if group == "" {
			log.Warn().
				Str("entity", s.Name).
				Str("record_id", r.ID).
				Str("field", s.GroupField).
				Msg("Skipping record without group value")
			continue
		}

		key := domain.LedgerKey{Group: group, Period: domain.PeriodOf(ts)}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Records = append(groups[i].Records, r)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Key.Less(groups[j].Key)
	})
	return groups, nil
}
