package ledger

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/schema"
	"github.com/dvloznov/ledger-sync/internal/syncerr"
	"github.com/xuri/excelize/v2"
)

// Load parses the ledger previously rendered at path. It returns nil, nil if
// no artifact exists. A file that is not a ledger of this schema yields a
// MalformedLedger error: unreadable workbook, missing or different label row,
// no trailing aggregate row, or a sentinel anywhere but the last row.
func Load(path string, s *schema.EntitySchema) (*Ledger, error) {
	if _, err := os.Stat(path); err != nil {
		// A file where a parent directory should be also means no ledger;
		// Render reports the blocked path.
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return nil, nil
		}
		return nil, syncerr.New(syncerr.MalformedLedger, fmt.Errorf("Load: stat %q: %w", path, err))
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, syncerr.New(syncerr.MalformedLedger, fmt.Errorf("Load: open %q: %w", path, err))
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, syncerr.New(syncerr.MalformedLedger, fmt.Errorf("Load: read rows of %q: %w", path, err))
	}

	table, err := parseTable(rows, s)
	if err != nil {
		return nil, syncerr.New(syncerr.MalformedLedger, fmt.Errorf("Load: %q: %w", path, err))
	}
	return table, nil
}

func parseTable(rows [][]string, s *schema.EntitySchema) (*Ledger, error) {
	if len(rows) <= s.HeaderRows {
		return nil, fmt.Errorf("expected column labels at row %d, file has %d rows", s.HeaderRows+1, len(rows))
	}

	labels := s.Labels()
	got := rows[s.HeaderRows]
	for i, want := range labels {
		if cell(got, i) != want {
			return nil, fmt.Errorf("column %d label is %q, expected %q", i+1, cell(got, i), want)
		}
	}

	var data [][]string
	for _, r := range rows[s.HeaderRows+1:] {
		if !blank(r) {
			data = append(data, r)
		}
	}
	if len(data) == 0 {
		return nil, errors.New("aggregate row is missing")
	}

	last := len(data) - 1
	if cell(data[last], 0) != schema.AggregateSentinel {
		return nil, fmt.Errorf("last row id is %q, expected aggregate %q", cell(data[last], 0), schema.AggregateSentinel)
	}

	lines := make([]Row, 0, last)
	for i, r := range data[:last] {
		id := domain.NormalizeID(cell(r, 0))
		if id == schema.AggregateSentinel {
			return nil, fmt.Errorf("aggregate row found at data row %d of %d", i+1, len(data))
		}
		values := make([]any, len(s.Columns))
		for j, c := range s.Columns {
			values[j] = parseCell(c, cell(r, j))
		}
		lines = append(lines, Row{ID: id, Values: values})
	}

	return &Ledger{Rows: lines, Total: Sum(lines, s.AmountIndex())}, nil
}

// Quarantine renames a malformed ledger aside so the next render does not
// overwrite it, returning the new path.
func Quarantine(path string, now time.Time) (string, error) {
	ext := ".xlsx"
	base := strings.TrimSuffix(path, ext)
	if base == path {
		ext = ""
	}
	target := fmt.Sprintf("%s.malformed-%s%s", base, now.UTC().Format("20060102T150405Z"), ext)
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("Quarantine: %w", err)
	}
	return target, nil
}

func parseCell(c schema.Column, raw string) any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if c.IsNumber() {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
