package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// ReadCSV parses a CSV stream into a single-sheet workbook. Ragged rows and
// stray quotes are tolerated; spreadsheet exports routinely contain both.
func ReadCSV(r io.Reader, size int64, progress func(read, total int64)) (*Workbook, error) {
	stream, _ := WrapForStreaming(r, size, progress)

	cr := csv.NewReader(stream)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	sheet := &Sheet{Name: CSVSheetName}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if sheet.Header == nil {
			sheet.Header = rec
			continue
		}
		sheet.Rows = append(sheet.Rows, rec)
	}
	if sheet.Header == nil {
		return nil, ErrEmptyFile
	}
	return &Workbook{Format: FormatCSV, Sheets: []*Sheet{sheet}}, nil
}

// WriteCSV writes the header and rows of s.
func WriteCSV(w io.Writer, s *Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(s.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}
