package mapping

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alphaops/contactsync/internal/core"
)

// ErrNoRecords is returned when the file has a header row but no data.
var ErrNoRecords = errors.New("no records found in uploaded file")

// UnmappedColumnsError reports canonical columns the header row did not
// provide.
type UnmappedColumnsError struct {
	Missing []string
}

func (e *UnmappedColumnsError) Error() string {
	return fmt.Sprintf("columns could not be mapped: %s", strings.Join(e.Missing, ", "))
}

// ParseResult is the outcome of parsing one uploaded file.
type ParseResult struct {
	Records []core.IncomingRecord
	Headers []string
	Mapping ColumnMapping
	// SkippedEmptyRows counts data rows dropped because every mapped
	// cell was blank.
	SkippedEmptyRows int
}

// ParseCSV reads a contact CSV: decodes tolerantly (BOM, broken UTF-8),
// maps the header row, and converts each data row into an incoming
// record. All six canonical columns must be mappable; rows that are
// blank in every mapped cell are skipped, and a file with no surviving
// data rows fails with ErrNoRecords.
func ParseCSV(r io.Reader) (*ParseResult, error) {
	cr := csv.NewReader(NewCleanReader(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoRecords
	}
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}

	mapping, missing := MapHeaders(headers)
	if len(missing) > 0 {
		return nil, &UnmappedColumnsError{Missing: missing}
	}

	result := &ParseResult{
		Headers: headers,
		Mapping: mapping,
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read data row: %w", err)
		}

		rec := recordFromRow(row, mapping)
		if rec == (core.IncomingRecord{}) {
			result.SkippedEmptyRows++
			continue
		}
		result.Records = append(result.Records, rec)
	}

	if len(result.Records) == 0 {
		return nil, ErrNoRecords
	}
	return result, nil
}

func recordFromRow(row []string, mapping ColumnMapping) core.IncomingRecord {
	cell := func(col string) string {
		idx := mapping[col]
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	return core.IncomingRecord{
		Company:  cell("Company"),
		Name:     cell("Name"),
		Surname:  cell("Surname"),
		Email:    cell("Email"),
		Position: cell("Position"),
		Phone:    cell("Phone"),
	}
}
