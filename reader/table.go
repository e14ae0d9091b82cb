package reader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// rowFunc receives each raw row with its 1-based line number. rowErr is set
// when the row itself could not be tokenised. Returning an error aborts.
type rowFunc func(line int, fields []string, rowErr error) error

func readDelimited(r io.Reader, delim rune, fn rowFunc) error {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	for {
		fields, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				if err := fn(parseErr.StartLine, nil, parseErr.Err); err != nil {
					return err
				}
				continue
			}
			return err
		}
		line, _ := cr.FieldPos(0)
		if err := fn(line, fields, nil); err != nil {
			return err
		}
	}
}

// readXLSX streams the first sheet. Trailing empty cells are trimmed by
// excelize, so rows are padded to the header width.
func readXLSX(r io.Reader, fn rowFunc) error {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	defer rows.Close()

	width := 0
	line := 0
	for rows.Next() {
		line++
		cols, err := rows.Columns()
		if err != nil {
			if err := fn(line, nil, err); err != nil {
				return err
			}
			continue
		}
		if isBlankRow(cols) {
			continue
		}
		if width == 0 {
			width = len(cols)
		}
		for len(cols) < width {
			cols = append(cols, "")
		}
		if err := fn(line, cols, nil); err != nil {
			return err
		}
	}
	return rows.Error()
}

func isBlankRow(cols []string) bool {
	for _, c := range cols {
		if c != "" {
			return false
		}
	}
	return true
}
