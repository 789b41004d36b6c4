package core

// normalize.go provides the identity normalization functions used for
// composite matching. Contacts match when their normalized email OR
// normalized phone equals an existing row's corresponding field.
//
// Both functions are pure, idempotent, and never fail: malformed input
// degrades to an empty string, never partial garbage. An empty normalized
// value simply opts the field out of matching.

import (
	"regexp"
	"strings"
)

var (
	// mailtoRegex extracts an address from mailto links pasted out of
	// spreadsheets or HTML exports, e.g. `<a href="mailto:a@b.com">`.
	mailtoRegex = regexp.MustCompile(`(?i)mailto:([^\s">]+)`)

	// htmlTagRegex strips any remaining markup around an address.
	htmlTagRegex = regexp.MustCompile(`<[^>]+>`)

	// nonDigitRegex removes everything but digits from phone numbers.
	nonDigitRegex = regexp.MustCompile(`\D`)
)

// NormalizeEmail canonicalizes an email address for matching: trims
// whitespace, extracts the address from an embedded mailto link or HTML
// anchor if present, strips leftover tags, and lower-cases. Empty input
// returns an empty string.
func NormalizeEmail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if m := mailtoRegex.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = htmlTagRegex.ReplaceAllString(s, "")

	return strings.TrimSpace(strings.ToLower(s))
}

// NormalizePhone canonicalizes a phone number for matching by stripping
// every non-digit character (spaces, dashes, parentheses, plus signs).
// Input with no digits returns an empty string.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return nonDigitRegex.ReplaceAllString(s, "")
}
