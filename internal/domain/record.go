package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is one flat item fetched from a record collection.
type Record struct {
	ID     string
	Fields map[string]any
}

// NewRecord builds a Record, taking its identifier from idField.
func NewRecord(idField string, fields map[string]any) Record {
	if fields == nil {
		fields = map[string]any{}
	}
	return Record{
		ID:     NormalizeID(fields[idField]),
		Fields: fields,
	}
}

// Value returns the raw value of a field, nil when absent.
func (r Record) Value(field string) any {
	return r.Fields[field]
}

// Has reports whether the field is present with a non-null value.
func (r Record) Has(field string) bool {
	v, ok := r.Fields[field]
	return ok && v != nil
}

// String returns the text form of a field, "" when absent or null.
func (r Record) String(field string) string {
	return Text(r.Fields[field])
}

// Text renders a loosely typed value the way it appears in a ledger cell.
func Text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// NormalizeID returns the canonical identifier text for a value, so that
// 7, 7.0, "7" and json.Number("7") all compare equal.
func NormalizeID(v any) string {
	s := strings.TrimSpace(Text(v))
	if s == "" {
		return ""
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

// Slug replaces spaces with underscores and truncates to n runes.
// n <= 0 disables truncation.
func Slug(s string, n int) string {
	s = strings.ReplaceAll(s, " ", "_")
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}
