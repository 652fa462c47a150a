package ledger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/schema"
	"github.com/dvloznov/ledger-sync/internal/syncerr"
	"github.com/xuri/excelize/v2"
)

// Render writes the ledger to path: header block, column labels at the
// schema's table offset, line rows, and the bold aggregate row. group feeds
// {field:NAME} header placeholders. The file is written to a temporary
// sibling and renamed into place.
func Render(path string, s *schema.EntitySchema, key domain.LedgerKey, group []domain.Record, l *Ledger) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := fill(f, s, key, group, l); err != nil {
		return syncerr.New(syncerr.RenderFailure, fmt.Errorf("Render: %w", err))
	}
	if err := writeAtomic(f, path); err != nil {
		return syncerr.New(syncerr.RenderFailure, fmt.Errorf("Render: %w", err))
	}
	return nil
}

func fill(f *excelize.File, s *schema.EntitySchema, key domain.LedgerKey, group []domain.Record, l *Ledger) error {
	sheet := f.GetSheetName(0)

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	for i, row := range s.HeaderCells(key, group) {
		cells := make([]any, len(row))
		for j, c := range row {
			cells[j] = c
		}
		if err := setRow(f, sheet, i+1, cells); err != nil {
			return err
		}
	}
	if len(s.Header) > 0 {
		if err := f.SetCellStyle(sheet, "A1", "A1", bold); err != nil {
			return fmt.Errorf("style title: %w", err)
		}
	}

	labelRow := s.HeaderRows + 1
	labels := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		labels[i] = c.Label
	}
	if err := setRow(f, sheet, labelRow, labels); err != nil {
		return err
	}
	if err := styleRow(f, sheet, labelRow, len(s.Columns), bold); err != nil {
		return err
	}

	next := labelRow + 1
	for _, r := range l.Rows {
		if err := setRow(f, sheet, next, r.Values); err != nil {
			return err
		}
		next++
	}

	if err := setRow(f, sheet, next, l.AggregateRow(s)); err != nil {
		return err
	}
	if err := styleRow(f, sheet, next, len(s.Columns), bold); err != nil {
		return err
	}

	for i, c := range s.Columns {
		if c.Width <= 0 {
			continue
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, c.Width); err != nil {
			return fmt.Errorf("column %s width: %w", name, err)
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []any) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, start, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func styleRow(f *excelize.File, sheet string, row, width, style int) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	end, err := excelize.CoordinatesToCellName(width, row)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, start, end, style); err != nil {
		return fmt.Errorf("style row %d: %w", row, err)
	}
	return nil
}

func writeAtomic(f *excelize.File, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move into place: %w", err)
	}
	return nil
}
