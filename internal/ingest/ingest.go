// Package ingest extracts recipient rows from uploaded CSV files.
//
// The file must carry a header row. Column matching is deliberately loose:
// the first header containing "name" maps to the recipient name and the
// first containing "email" maps to the address, so "Full Name" / "Email
// Address" exports from common tools work unmodified. Rows with a blank
// email are dropped silently and only counted.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ignite/bulkmailer/internal/domain"
)

var (
	// ErrEmptyFile reports a file with no rows at all.
	ErrEmptyFile = errors.New("file is empty")
	// ErrMissingColumns reports a header row without both a name and an
	// email column.
	ErrMissingColumns = errors.New("file must contain both name and email columns")
)

// Result holds the parsed recipients plus how many rows were dropped for a
// blank or missing email.
type Result struct {
	Recipients []domain.RecipientInput
	Skipped    int
}

// ParseRecipients reads a CSV stream and returns the recipient rows.
func ParseRecipients(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	nameCol, emailCol := -1, -1
	for i, h := range header {
		n := normalizeHeader(h)
		if nameCol < 0 && strings.Contains(n, "name") {
			nameCol = i
		}
		if emailCol < 0 && strings.Contains(n, "email") {
			emailCol = i
		}
	}
	if nameCol < 0 || emailCol < 0 {
		return nil, ErrMissingColumns
	}

	res := &Result{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed rows are skipped like blank-email rows.
			res.Skipped++
			continue
		}

		var name, email string
		if nameCol < len(record) {
			name = strings.TrimSpace(record[nameCol])
		}
		if emailCol < len(record) {
			email = strings.TrimSpace(record[emailCol])
		}
		if email == "" {
			res.Skipped++
			continue
		}
		res.Recipients = append(res.Recipients, domain.RecipientInput{Name: name, Email: email})
	}
	return res, nil
}

func normalizeHeader(h string) string {
	n := strings.ToLower(strings.TrimSpace(h))
	n = strings.ReplaceAll(n, " ", "_")
	n = strings.ReplaceAll(n, "-", "_")
	return n
}
