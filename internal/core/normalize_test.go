package core

import "testing"

// ----------------------------------------------------------------------------
// NormalizeEmail Tests
// ----------------------------------------------------------------------------

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		// Basic cleanup
		{
			name:  "already clean",
			input: "john@example.com",
			want:  "john@example.com",
		},
		{
			name:  "surrounding whitespace",
			input: "  john@example.com  ",
			want:  "john@example.com",
		},
		{
			name:  "uppercase folded",
			input: "JOHN@Example.COM",
			want:  "john@example.com",
		},
		{
			name:  "mixed case with whitespace",
			input: " JOHN@X.com ",
			want:  "john@x.com",
		},

		// mailto: extraction
		{
			name:  "plain mailto prefix",
			input: "mailto:john@example.com",
			want:  "john@example.com",
		},
		{
			name:  "uppercase mailto prefix",
			input: "MAILTO:John@Example.com",
			want:  "john@example.com",
		},

		// HTML fragments pasted from spreadsheets
		{
			name:  "anchor tag markup",
			input: `<a href="mailto:john@example.com">john@example.com</a>`,
			want:  "john@example.com",
		},
		{
			name:  "markup without mailto",
			input: "<b>john@example.com</b>",
			want:  "john@example.com",
		},

		// Edge cases
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "whitespace only",
			input: "   ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeEmail(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeEmailIdempotent(t *testing.T) {
	inputs := []string{
		" JOHN@X.com ",
		"mailto:john@example.com",
		`<a href="mailto:a@b.c">a@b.c</a>`,
		"",
		"plain@example.org",
	}
	for _, in := range inputs {
		once := NormalizeEmail(in)
		twice := NormalizeEmail(once)
		if once != twice {
			t.Errorf("NormalizeEmail not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

// ----------------------------------------------------------------------------
// NormalizePhone Tests
// ----------------------------------------------------------------------------

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "digits only",
			input: "5551234",
			want:  "5551234",
		},
		{
			name:  "dashes stripped",
			input: "555-1234",
			want:  "5551234",
		},
		{
			name:  "parentheses and spaces stripped",
			input: "(555) 123-4567",
			want:  "5551234567",
		},
		{
			name:  "plus and country code",
			input: "+1 555 123 4567",
			want:  "15551234567",
		},
		{
			name:  "letters dropped",
			input: "ext. 555",
			want:  "555",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "no digits at all",
			input: "n/a",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePhone(tt.input)
			if got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	inputs := []string{"(555) 123-4567", "+1-800-FLOWERS", "", "5551234"}
	for _, in := range inputs {
		once := NormalizePhone(in)
		twice := NormalizePhone(once)
		if once != twice {
			t.Errorf("NormalizePhone not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}
