package query

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// IsCodeLike reports whether a digit-only value is an identifier rather than a
// number: it has a leading zero or more digits than a BIGINT can hold.
func IsCodeLike(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(value) > 18 || (len(value) > 1 && value[0] == '0')
}

// CodeColumns scans up to sample data rows of a CSV with a header and returns
// the header names of columns holding code-like values.
func CodeColumns(r io.Reader, sample int) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	codes := make([]bool, len(header))
	for i := 0; i < sample; i++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		for col, value := range record {
			if col < len(codes) && IsCodeLike(value) {
				codes[col] = true
			}
		}
	}

	var columns []string
	for col, isCode := range codes {
		if isCode {
			columns = append(columns, header[col])
		}
	}
	return columns, nil
}
