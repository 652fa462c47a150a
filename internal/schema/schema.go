package schema

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

// AggregateSentinel is the identifier displayed in a ledger's aggregate row.
const AggregateSentinel = "TOTAL"

// ColumnType controls how a column's cells are typed in the ledger.
type ColumnType string

const (
	// TypeText cells are written as strings.
	TypeText ColumnType = "text"
	// TypeNumber cells are written as numbers when the value parses as one.
	TypeNumber ColumnType = "number"
)

// Column maps one source field onto one ledger column.
// A column without a field is rendered blank.
type Column struct {
	Label string     `yaml:"label"`
	Field string     `yaml:"field,omitempty"`
	Type  ColumnType `yaml:"type,omitempty"`
	Width float64    `yaml:"width,omitempty"`
}

// IsNumber reports whether the column holds numbers.
func (c Column) IsNumber() bool {
	return c.Type == TypeNumber
}

// EntitySchema is the static description of one record type: how its records
// are grouped, which columns its ledger has, how the ledger header looks and
// where artifacts live locally and remotely.
type EntitySchema struct {
	Name       string `yaml:"name"`
	Title      string `yaml:"title"`
	Collection string `yaml:"collection"`

	IDField     string `yaml:"id_field"`
	GroupField  string `yaml:"group_field"`
	PeriodField string `yaml:"period_field"`

	// AttachmentFields are checked in order; the first non-empty one is used.
	AttachmentFields []string `yaml:"attachment_fields"`
	SlugField        string   `yaml:"slug_field"`
	SlugLength       int      `yaml:"slug_length"`

	Columns      []Column   `yaml:"columns"`
	AmountColumn string     `yaml:"amount_column"`
	HeaderRows   int        `yaml:"header_rows"`
	Header       [][]string `yaml:"header"`

	LedgerFolder        []string `yaml:"ledger_folder"`
	LedgerFile          string   `yaml:"ledger_file"`
	AttachmentFolder    []string `yaml:"attachment_folder"`
	AttachmentSubfolder string   `yaml:"attachment_subfolder,omitempty"`
	AttachmentFile      string   `yaml:"attachment_file"`

	Schedule string `yaml:"schedule"`
}

// Validate checks the schema for misconfigurations that would make ledgers
// unreadable on the next run.
func (s *EntitySchema) Validate() error {
	var errs []error
	required := map[string]string{
		"name":          s.Name,
		"collection":    s.Collection,
		"id_field":      s.IDField,
		"group_field":   s.GroupField,
		"period_field":  s.PeriodField,
		"amount_column": s.AmountColumn,
		"ledger_file":   s.LedgerFile,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", field))
		}
	}

	if len(s.Columns) == 0 {
		errs = append(errs, errors.New("at least one column is required"))
	} else if s.Columns[0].Field != s.IDField {
		errs = append(errs, fmt.Errorf("first column must map id_field %q, got %q", s.IDField, s.Columns[0].Field))
	}

	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c.Label == "" {
			errs = append(errs, errors.New("column label is required"))
			continue
		}
		if seen[c.Label] {
			errs = append(errs, fmt.Errorf("duplicate column label %q", c.Label))
		}
		seen[c.Label] = true
		if c.Type != "" && c.Type != TypeText && c.Type != TypeNumber {
			errs = append(errs, fmt.Errorf("column %q: unknown type %q", c.Label, c.Type))
		}
	}

	if idx := s.AmountIndex(); s.AmountColumn != "" && idx < 0 {
		errs = append(errs, fmt.Errorf("amount_column %q is not a column", s.AmountColumn))
	} else if idx >= 0 && !s.Columns[idx].IsNumber() {
		errs = append(errs, fmt.Errorf("amount_column %q must have type number", s.AmountColumn))
	}

	if s.HeaderRows < len(s.Header) {
		errs = append(errs, fmt.Errorf("header has %d rows but header_rows is %d", len(s.Header), s.HeaderRows))
	}
	if len(s.LedgerFolder) == 0 {
		errs = append(errs, errors.New("ledger_folder is required"))
	}
	if len(s.AttachmentFields) > 0 && (len(s.AttachmentFolder) == 0 || s.AttachmentFile == "") {
		errs = append(errs, errors.New("attachment_folder and attachment_file are required when attachment_fields is set"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("schema %q: %w", s.Name, err)
	}
	return nil
}

// Labels returns the column labels in ledger order.
func (s *EntitySchema) Labels() []string {
	labels := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		labels[i] = c.Label
	}
	return labels
}

// ColumnIndex returns the index of the labelled column, -1 if unknown.
func (s *EntitySchema) ColumnIndex(label string) int {
	for i, c := range s.Columns {
		if c.Label == label {
			return i
		}
	}
	return -1
}

// AmountIndex returns the index of the aggregate column.
func (s *EntitySchema) AmountIndex() int {
	return s.ColumnIndex(s.AmountColumn)
}

// AttachmentRef returns the record's attachment reference, if any.
func (s *EntitySchema) AttachmentRef(r domain.Record) (string, bool) {
	for _, field := range s.AttachmentFields {
		ref := strings.TrimSpace(r.String(field))
		if ref != "" {
			return ref, true
		}
	}
	return "", false
}

// RecordSlug returns the truncated descriptive slug used in attachment names.
func (s *EntitySchema) RecordSlug(r domain.Record) string {
	return domain.Slug(pathSafe(r.String(s.SlugField)), s.SlugLength)
}

// LedgerFolderPath returns the folder segments holding the ledger for key.
// The same segments address the local directory and the remote folder.
func (s *EntitySchema) LedgerFolderPath(key domain.LedgerKey) []string {
	return s.expandAll(s.LedgerFolder, Vars{Key: key})
}

// LedgerFileName returns the ledger artifact's file name for key.
func (s *EntitySchema) LedgerFileName(key domain.LedgerKey) string {
	return s.Expand(s.LedgerFile, Vars{Key: key})
}

// LedgerPath returns the local ledger path under root.
func (s *EntitySchema) LedgerPath(root string, key domain.LedgerKey) string {
	parts := append([]string{root}, s.LedgerFolderPath(key)...)
	return filepath.Join(append(parts, s.LedgerFileName(key))...)
}

// AttachmentFolderPath returns the folder segments holding r's attachment.
func (s *EntitySchema) AttachmentFolderPath(key domain.LedgerKey, r domain.Record) []string {
	vars := s.recordVars(key, r)
	segments := s.expandAll(s.AttachmentFolder, vars)
	if s.AttachmentSubfolder != "" {
		segments = append(segments, s.Expand(s.AttachmentSubfolder, vars))
	}
	return segments
}

// AttachmentFileName returns the canonical document name for r's attachment.
func (s *EntitySchema) AttachmentFileName(key domain.LedgerKey, r domain.Record) string {
	return s.Expand(s.AttachmentFile, s.recordVars(key, r))
}

// AttachmentPath returns the local attachment artifact path under root.
func (s *EntitySchema) AttachmentPath(root string, key domain.LedgerKey, r domain.Record) string {
	parts := append([]string{root}, s.AttachmentFolderPath(key, r)...)
	return filepath.Join(append(parts, s.AttachmentFileName(key, r))...)
}

// HeaderCells expands the header block for a group. Field lookups take the
// first non-empty value among the group's records.
func (s *EntitySchema) HeaderCells(key domain.LedgerKey, group []domain.Record) [][]string {
	vars := Vars{Key: key, Lookup: FirstValue(group)}
	rows := make([][]string, len(s.Header))
	for i, row := range s.Header {
		rows[i] = s.expandAll(row, vars)
	}
	return rows
}

func (s *EntitySchema) recordVars(key domain.LedgerKey, r domain.Record) Vars {
	return Vars{
		Key:      key,
		RecordID: pathSafe(r.ID),
		Slug:     s.RecordSlug(r),
	}
}

func (s *EntitySchema) expandAll(templates []string, vars Vars) []string {
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = s.Expand(t, vars)
	}
	return out
}

var pathReplacer = strings.NewReplacer("/", "_", "\\", "_")

func pathSafe(s string) string {
	return pathReplacer.Replace(s)
}
