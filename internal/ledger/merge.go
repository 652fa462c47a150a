package ledger

import (
	"github.com/dvloznov/ledger-sync/internal/schema"
)

// Merge reconciles incoming rows against an existing ledger, which may be nil.
// Existing rows come first so incoming rows win on identifier clashes; each
// identifier keeps its last occurrence at that occurrence's position.
// The total is recomputed from the surviving rows.
func Merge(s *schema.EntitySchema, existing *Ledger, incoming []Row) *Ledger {
	var all []Row
	if existing != nil {
		all = append(all, existing.Rows...)
	}
	all = append(all, incoming...)

	last := make(map[string]int, len(all))
	for i, r := range all {
		last[r.ID] = i
	}

	rows := make([]Row, 0, len(last))
	for i, r := range all {
		if last[r.ID] == i {
			rows = append(rows, r)
		}
	}

	return &Ledger{
		Rows:  rows,
		Total: Sum(rows, s.AmountIndex()),
	}
}
