package domain

import (
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"int", 7, "7"},
		{"float integral", 7.0, "7"},
		{"json number", json.Number("12"), "12"},
		{"string with spaces", " 12 ", "12"},
		{"string float", "3.0", "3"},
		{"non integral", 3.5, "3.5"},
		{"uuid", "5f1c-aa", "5f1c-aa"},
		{"nil", nil, ""},
		{"sentinel", "TOTAL", "TOTAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeID(tt.in))
		})
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "Office_chair", Slug("Office chair", 20))
	assert.Equal(t, "A_very_long_item_nam", Slug("A very long item name indeed", 20))
	assert.Equal(t, "Zürich_Hotel", Slug("Zürich Hotel", 20))
	assert.Equal(t, "Kaffee_", Slug("Kaffee und Kuchen", 7))
	assert.Equal(t, "no_limit_here", Slug("no limit here", 0))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name       string
		in         any
		wantPeriod string
		wantErr    bool
	}{
		{"supabase timestamptz", "2024-03-05T10:20:30.123456+00:00", "2024_03", false},
		{"rfc3339 zulu", "2024-03-31T23:59:59Z", "2024_03", false},
		{"no zone", "2024-04-01T00:00:00", "2024_04", false},
		{"postgres text", "2024-05-02 08:00:00+02", "2024_05", false},
		{"space no zone", "2024-06-02 08:00:00", "2024_06", false},
		{"date only", "2024-07-09", "2024_07", false},
		{"time value", time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), "2023_12", false},
		{"civil date", civil.Date{Year: 2024, Month: 2, Day: 29}, "2024_02", false},
		{"civil datetime", civil.DateTime{Date: civil.Date{Year: 2024, Month: 1, Day: 2}}, "2024_01", false},
		{"empty", "", "", true},
		{"nil", nil, "", true},
		{"garbage", "yesterday", "", true},
		{"wrong type", 42, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPeriod, PeriodOf(ts).String())
		})
	}
}

func TestParseTimestamp_Missing(t *testing.T) {
	_, err := ParseTimestamp(nil)
	assert.ErrorIs(t, err, ErrMissingTimestamp)
}

func TestPeriod(t *testing.T) {
	p := PeriodOf(time.Date(2024, time.March, 31, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, Period{Year: 2024, Month: time.March}, p)
	assert.Equal(t, "2024_03", p.String())
	assert.Equal(t, "2024 03", p.Label())
	assert.True(t, p.Before(Period{Year: 2024, Month: time.April}))
	assert.False(t, p.Before(Period{Year: 2023, Month: time.December}))
}

func TestLedgerKey_Less(t *testing.T) {
	a := LedgerKey{Group: "Visa", Period: Period{2024, time.March}}
	b := LedgerKey{Group: "Visa", Period: Period{2024, time.April}}
	c := LedgerKey{Group: "Amex", Period: Period{2025, time.January}}

	assert.True(t, a.Less(b))
	assert.True(t, c.Less(a))
	assert.Equal(t, "Visa/2024_03", a.String())
}

func TestRecord_Accessors(t *testing.T) {
	r := NewRecord("id", map[string]any{"id": json.Number("4"), "price": 12.5, "note": nil})

	assert.Equal(t, "4", r.ID)
	assert.Equal(t, "12.5", r.String("price"))
	assert.True(t, r.Has("price"))
	assert.False(t, r.Has("note"))
	assert.False(t, r.Has("missing"))
	assert.Equal(t, "", r.String("missing"))
}
