// Package mapping turns uploaded contact files into records the import
// pipeline understands: fuzzy header-to-field mapping plus CSV parsing
// with tolerant decoding.
package mapping

import (
	"regexp"
	"strings"
)

// CanonicalColumns are the six contact fields an import file maps to,
// in display order.
var CanonicalColumns = []string{"Company", "Name", "Surname", "Email", "Position", "Phone"}

// headerAliases maps normalized header variants to canonical columns.
// Checked after exact normalized matching, before substring matching.
var headerAliases = map[string]string{
	"firstname":    "Name",
	"lastname":     "Surname",
	"familyname":   "Surname",
	"emailaddress": "Email",
	"mail":         "Email",
	"organisation": "Company",
	"organization": "Company",
	"employer":     "Company",
	"jobtitle":     "Position",
	"title":        "Position",
	"role":         "Position",
	"phonenumber":  "Phone",
	"telephone":    "Phone",
	"tel":          "Phone",
	"mobile":       "Phone",
	"cell":         "Phone",
}

var headerJunkRegex = regexp.MustCompile(`[\s_\-]`)

// normalizeHeader canonicalizes a header cell for matching: lowercase
// with whitespace, underscores, and hyphens removed.
func normalizeHeader(h string) string {
	return headerJunkRegex.ReplaceAllString(strings.ToLower(h), "")
}

// ColumnMapping maps each canonical column to its index in the file's
// header row, or -1 when the file has no matching column.
type ColumnMapping map[string]int

// SourceHeader returns the matched file header for a canonical column,
// or "" when unmatched.
func (m ColumnMapping) SourceHeader(headers []string, column string) string {
	idx, ok := m[column]
	if !ok || idx < 0 || idx >= len(headers) {
		return ""
	}
	return headers[idx]
}

// MapHeaders resolves the file's header row against the canonical
// columns. Matching is case, space, and punctuation insensitive: an
// exact normalized match wins, then a known alias, then a substring
// match in either direction. Returns the mapping and the canonical
// columns that could not be matched.
func MapHeaders(headers []string) (ColumnMapping, []string) {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}

	mapping := make(ColumnMapping, len(CanonicalColumns))
	used := make(map[int]bool)
	var missing []string

	for _, col := range CanonicalColumns {
		idx := matchColumn(col, normalized, used)
		mapping[col] = idx
		if idx < 0 {
			missing = append(missing, col)
		} else {
			used[idx] = true
		}
	}

	return mapping, missing
}

func matchColumn(col string, normalized []string, used map[int]bool) int {
	want := normalizeHeader(col)

	for i, h := range normalized {
		if !used[i] && h == want {
			return i
		}
	}
	for i, h := range normalized {
		if !used[i] && headerAliases[h] == col {
			return i
		}
	}
	for i, h := range normalized {
		if used[i] || h == "" {
			continue
		}
		if strings.Contains(h, want) || strings.Contains(want, h) {
			return i
		}
	}
	return -1
}
