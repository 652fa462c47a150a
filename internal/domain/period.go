package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// ErrMissingTimestamp is returned when a record carries no timestamp value.
var ErrMissingTimestamp = errors.New("timestamp is empty")

// timestampLayouts are tried in order. Layouts without a zone parse as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Period is a year+month bucket.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf derives the period of a timestamp in the timestamp's own location.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// String returns the path form, e.g. "2024_03".
func (p Period) String() string {
	return fmt.Sprintf("%04d_%02d", p.Year, int(p.Month))
}

// Label returns the human form, e.g. "2024 03".
func (p Period) Label() string {
	return strings.ReplaceAll(p.String(), "_", " ")
}

// Before orders periods chronologically.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// LedgerKey identifies one ledger artifact and one remote folder path.
type LedgerKey struct {
	Group  string
	Period Period
}

func (k LedgerKey) String() string {
	return k.Group + "/" + k.Period.String()
}

// Less orders keys by group value, then period.
func (k LedgerKey) Less(o LedgerKey) bool {
	if k.Group != o.Group {
		return k.Group < o.Group
	}
	return k.Period.Before(o.Period)
}

// ParseTimestamp interprets the loosely typed timestamp values returned by
// record sources.
func ParseTimestamp(v any) (time.Time, error) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, ErrMissingTimestamp
	case time.Time:
		if val.IsZero() {
			return time.Time{}, ErrMissingTimestamp
		}
		return val, nil
	case civil.Date:
		return val.In(time.UTC), nil
	case civil.DateTime:
		return val.In(time.UTC), nil
	case string, json.Number:
		return parseTimestampText(Text(val))
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func parseTimestampText(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMissingTimestamp
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}
