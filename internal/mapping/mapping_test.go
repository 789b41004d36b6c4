package mapping

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// ----------------------------------------------------------------------------
// MapHeaders Tests
// ----------------------------------------------------------------------------

func TestMapHeaders(t *testing.T) {
	tests := []struct {
		name        string
		headers     []string
		wantMapped  map[string]string // canonical -> source header
		wantMissing []string
	}{
		{
			name:    "exact canonical headers",
			headers: []string{"Company", "Name", "Surname", "Email", "Position", "Phone"},
			wantMapped: map[string]string{
				"Company": "Company", "Name": "Name", "Surname": "Surname",
				"Email": "Email", "Position": "Position", "Phone": "Phone",
			},
		},
		{
			name:    "case space and punctuation insensitive",
			headers: []string{"COMPANY", " name ", "sur_name", "E-Mail", "position", "PHONE"},
			wantMapped: map[string]string{
				"Company": "COMPANY", "Name": " name ", "Surname": "sur_name",
				"Email": "E-Mail", "Position": "position", "Phone": "PHONE",
			},
		},
		{
			name:    "alias headers",
			headers: []string{"Employer", "First Name", "Last Name", "Mail", "Job Title", "Mobile"},
			wantMapped: map[string]string{
				"Company": "Employer", "Name": "First Name", "Surname": "Last Name",
				"Email": "Mail", "Position": "Job Title", "Phone": "Mobile",
			},
		},
		{
			name:    "substring match",
			headers: []string{"Company Name", "Contact Name", "Surname", "Email Address", "Position", "Phone Number"},
			wantMapped: map[string]string{
				"Company": "Company Name", "Email": "Email Address", "Phone": "Phone Number",
			},
		},
		{
			name:        "missing columns reported",
			headers:     []string{"Name", "Email"},
			wantMissing: []string{"Company", "Surname", "Position", "Phone"},
		},
		{
			name:        "nothing matches",
			headers:     []string{"Zip", "Fax", "Notes"},
			wantMissing: []string{"Company", "Name", "Surname", "Email", "Position", "Phone"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapping, missing := MapHeaders(tt.headers)

			for col, wantSrc := range tt.wantMapped {
				if got := mapping.SourceHeader(tt.headers, col); got != wantSrc {
					t.Errorf("%s mapped to %q, want %q", col, got, wantSrc)
				}
			}
			if len(missing) != len(tt.wantMissing) {
				t.Fatalf("missing = %v, want %v", missing, tt.wantMissing)
			}
			for i, want := range tt.wantMissing {
				if missing[i] != want {
					t.Errorf("missing[%d] = %q, want %q", i, missing[i], want)
				}
			}
		})
	}
}

func TestMapHeadersNoDoubleClaim(t *testing.T) {
	// "Company Name" must not satisfy both Company and Name.
	headers := []string{"Company Name", "Email"}
	mapping, missing := MapHeaders(headers)

	if mapping["Company"] != 0 {
		t.Errorf("Company mapped to index %d, want 0", mapping["Company"])
	}
	if mapping["Name"] == 0 {
		t.Error("Name claimed the same column as Company")
	}
	for _, col := range missing {
		if col == "Company" || col == "Email" {
			t.Errorf("%s reported missing despite a matching header", col)
		}
	}
}

// ----------------------------------------------------------------------------
// ParseCSV Tests
// ----------------------------------------------------------------------------

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		"Company,First Name,Surname,E-mail,Position,Phone",
		"Acme,John,Smith,john@x.com,Engineer,555-1234",
		`Globex,Jane,Doe,jane@y.com,"VP, Sales",555-9999`,
		",,,,,",
		"SoloCo,Max,,,Founder,",
	}, "\n")

	result, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}

	if len(result.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(result.Records))
	}
	if result.SkippedEmptyRows != 1 {
		t.Errorf("SkippedEmptyRows = %d, want 1", result.SkippedEmptyRows)
	}

	first := result.Records[0]
	if first.Company != "Acme" || first.Name != "John" || first.Email != "john@x.com" {
		t.Errorf("first record = %+v", first)
	}
	if got := result.Records[1].Position; got != "VP, Sales" {
		t.Errorf("quoted field = %q, want %q", got, "VP, Sales")
	}
	if got := result.Records[2]; got.Phone != "" || got.Email != "" {
		t.Errorf("short row not padded with empties: %+v", got)
	}
}

func TestParseCSVUnmappedColumns(t *testing.T) {
	input := "Zip,Fax\n123,456\n"

	_, err := ParseCSV(strings.NewReader(input))
	var uErr *UnmappedColumnsError
	if !errors.As(err, &uErr) {
		t.Fatalf("err = %v, want UnmappedColumnsError", err)
	}
	if len(uErr.Missing) != 6 {
		t.Errorf("missing = %v, want all six columns", uErr.Missing)
	}
	if !strings.Contains(err.Error(), "could not be mapped") {
		t.Errorf("error text = %q", err.Error())
	}
}

func TestParseCSVNoRecords(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty file", input: ""},
		{name: "header only", input: "Company,Name,Surname,Email,Position,Phone\n"},
		{name: "only blank rows", input: "Company,Name,Surname,Email,Position,Phone\n,,,,,\n,,,,,\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.input))
			if !errors.Is(err, ErrNoRecords) {
				t.Fatalf("err = %v, want ErrNoRecords", err)
			}
		})
	}
}

func TestParseCSVTolerantDecoding(t *testing.T) {
	// BOM before the header plus an invalid UTF-8 byte inside a cell.
	input := "\xEF\xBB\xBFCompany,Name,Surname,Email,Position,Phone\n" +
		"Acme,Jo\xFFhn,Smith,john@x.com,Engineer,555\n"

	result, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(result.Records))
	}
	if result.Headers[0] != "Company" {
		t.Errorf("BOM not stripped: first header = %q", result.Headers[0])
	}
	if got := result.Records[0].Name; got != "Jo?hn" {
		t.Errorf("Name = %q, want invalid byte replaced", got)
	}
}

// ----------------------------------------------------------------------------
// CleanReader Tests
// ----------------------------------------------------------------------------

func TestCleanReaderSplitRune(t *testing.T) {
	// A two-byte rune split across 1-byte source reads must survive.
	src := &drippingReader{data: []byte("caf\xC3\xA9!")}
	out, err := io.ReadAll(NewCleanReader(src))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(out) != "café!" {
		t.Errorf("got %q, want %q", out, "café!")
	}
}

func TestCleanReaderNoBOMPassthrough(t *testing.T) {
	out, err := io.ReadAll(NewCleanReader(strings.NewReader("plain ascii")))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(out) != "plain ascii" {
		t.Errorf("got %q", out)
	}
}

// drippingReader yields one byte per Read call.
type drippingReader struct {
	data []byte
	pos  int
}

func (d *drippingReader) Read(p []byte) (int, error) {
	if d.pos >= len(d.data) {
		return 0, io.EOF
	}
	p[0] = d.data[d.pos]
	d.pos++
	return 1, nil
}
