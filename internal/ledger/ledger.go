package ledger

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/schema"
	"github.com/shopspring/decimal"
)

// Row is one line row: its identifier and one cell per schema column.
// Cells of number columns hold float64 when the value parses as a number.
type Row struct {
	ID     string
	Values []any
}

// Ledger is the reconciled state of one LedgerKey. The aggregate row is not
// stored in Rows; it is derived from them by Total.
type Ledger struct {
	Rows  []Row
	Total decimal.Decimal
}

// IDs returns the line-row identifiers in ledger order.
func (l *Ledger) IDs() []string {
	ids := make([]string, len(l.Rows))
	for i, r := range l.Rows {
		ids[i] = r.ID
	}
	return ids
}

// AggregateRow returns the sentinel row cells for s.
func (l *Ledger) AggregateRow(s *schema.EntitySchema) []any {
	cells := make([]any, len(s.Columns))
	cells[0] = schema.AggregateSentinel
	if idx := s.AmountIndex(); idx >= 0 {
		cells[idx] = l.Total.InexactFloat64()
	}
	return cells
}

// RowFromRecord maps a record onto the schema's columns.
func RowFromRecord(s *schema.EntitySchema, r domain.Record) Row {
	values := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		if c.Field == "" {
			continue
		}
		values[i] = cellValue(c, r.Value(c.Field))
	}
	return Row{ID: r.ID, Values: values}
}

// RowsFromRecords maps records onto line rows, preserving order.
func RowsFromRecords(s *schema.EntitySchema, records []domain.Record) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = RowFromRecord(s, r)
	}
	return rows
}

// Sum adds the cells of column idx. Cells that are not numbers count as zero.
func Sum(rows []Row, idx int) decimal.Decimal {
	total := decimal.Zero
	if idx < 0 {
		return total
	}
	for _, r := range rows {
		if idx < len(r.Values) {
			total = total.Add(amountOf(r.Values[idx]))
		}
	}
	return total
}

func cellValue(c schema.Column, v any) any {
	if v == nil {
		return nil
	}
	if !c.IsNumber() {
		return domain.Text(v)
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	}
	text := strings.TrimSpace(domain.Text(v))
	if text == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f
	}
	return text
}

func amountOf(v any) decimal.Decimal {
	switch n := v.(type) {
	case nil:
		return decimal.Zero
	case float64:
		return decimal.NewFromFloat(n)
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	d, err := decimal.NewFromString(strings.TrimSpace(domain.Text(v)))
	if err != nil {
		return decimal.Zero
	}
	return d
}
