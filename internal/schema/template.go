package schema

import (
	"regexp"
	"strings"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

// missingValue fills a {field:NAME} placeholder with no value in the group.
const missingValue = "N/A"

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)(?::([^{}]+))?\}`)

// Vars are the values available to header and path templates.
type Vars struct {
	Key      domain.LedgerKey
	RecordID string
	Slug     string
	// Lookup resolves {field:NAME}. Nil means every lookup is missing.
	Lookup func(field string) string
}

// Expand substitutes placeholders in tmpl:
//
//	{key}          raw grouping value
//	{key_slug}     grouping value with whitespace normalized, safe for paths
//	{period}       2024_03
//	{period_label} 2024 03
//	{id}           record identifier
//	{slug}         truncated descriptive slug of the record
//	{field:NAME}   first non-empty NAME value in the group, else N/A
//
// Unknown placeholders are left untouched.
func (s *EntitySchema) Expand(tmpl string, v Vars) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		parts := placeholderRe.FindStringSubmatch(m)
		name, arg := parts[1], parts[2]
		switch name {
		case "key":
			return v.Key.Group
		case "key_slug":
			return domain.Slug(pathSafe(v.Key.Group), 0)
		case "period":
			return v.Key.Period.String()
		case "period_label":
			return v.Key.Period.Label()
		case "id":
			return v.RecordID
		case "slug":
			return v.Slug
		case "field":
			if arg == "" {
				return m
			}
			if v.Lookup != nil {
				if val := v.Lookup(arg); val != "" {
					return val
				}
			}
			return missingValue
		default:
			return m
		}
	})
}

// FirstValue returns a lookup yielding the first non-empty value of a field
// across records.
func FirstValue(records []domain.Record) func(string) string {
	return func(field string) string {
		for _, r := range records {
			if v := strings.TrimSpace(r.String(field)); v != "" {
				return v
			}
		}
		return ""
	}
}
