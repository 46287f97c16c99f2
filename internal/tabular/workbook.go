// Package tabular reads and writes the spreadsheets the engine cleans.
//
// A Workbook is an ordered list of sheets; each sheet has a header row and
// data rows of raw cell text. CSV input becomes a single sheet named "main";
// XLSX input keeps every sheet in workbook order. Entries are extracted from
// the detected email columns with spreadsheet coordinates (the header is row
// 1, the first data row is row 2, columns start at 1) and the cleaned
// workbook is rebuilt from the routed entries.
package tabular

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// CSVSheetName names the only sheet of a CSV workbook.
const CSVSheetName = "main"

var (
	// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrNoEmailColumn is returned when no sheet has an email column.
	ErrNoEmailColumn = errors.New("no email column found")
	// ErrEmptyFile is returned for input without a header row.
	ErrEmptyFile = errors.New("file is empty")
)

// Format is a workbook file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatOf picks the format from a file name.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// ContentType returns the MIME type for downloads.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Sheet is one table of cells.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Cell returns the text at a 0-based data row and column, or "" when the row
// is short.
func (s *Sheet) Cell(row, col int) string {
	if row < 0 || row >= len(s.Rows) || col < 0 || col >= len(s.Rows[row]) {
		return ""
	}
	return s.Rows[row][col]
}

// Width is the widest of the header and every row.
func (s *Sheet) Width() int {
	w := len(s.Header)
	for _, r := range s.Rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// Workbook is the in-memory form of an input or output file.
type Workbook struct {
	Format Format
	Sheets []*Sheet
}

// Sheet returns the sheet with the given name.
func (wb *Workbook) Sheet(name string) (*Sheet, bool) {
	for _, s := range wb.Sheets {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Read parses r according to the format of name. size is the input length
// when known and only feeds progress reporting.
func Read(name string, r io.Reader, size int64, progress func(read, total int64)) (*Workbook, error) {
	format, err := FormatOf(name)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatXLSX:
		return ReadXLSX(r)
	default:
		return ReadCSV(r, size, progress)
	}
}

// Write serializes wb in its own format.
func Write(w io.Writer, wb *Workbook) error {
	switch wb.Format {
	case FormatXLSX:
		return WriteXLSX(w, wb)
	case FormatCSV:
		if len(wb.Sheets) != 1 {
			return fmt.Errorf("csv output needs exactly one sheet, have %d", len(wb.Sheets))
		}
		return WriteCSV(w, wb.Sheets[0])
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, wb.Format)
	}
}

// CleanCell unwraps spreadsheet export artifacts: ="value" formula literals
// and a leading '=' on plain text. Surrounding whitespace is preserved for
// the normalizer to report as a change.
func CleanCell(s string) string {
	t := strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(t, `="`) && strings.HasSuffix(t, `"`) && len(t) >= 3:
		return t[2 : len(t)-1]
	case strings.HasPrefix(t, "=") && strings.Contains(t, "@"):
		return t[1:]
	default:
		return s
	}
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
