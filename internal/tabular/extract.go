package tabular

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/mailclean/internal/engine"
)

// Column is a detected email column.
type Column struct {
	Sheet  string `json:"sheet"`
	Index  int    `json:"index"`
	Header string `json:"header"`
}

// Extraction is the engine input taken from a workbook.
type Extraction struct {
	Entries []*engine.Entry
	Columns []Column
}

// Extract creates one entry per non-blank cell in the email columns of every
// sheet, in sheet, row, column order. Seq follows that order. Sheets without
// an email column are left untouched; a workbook with none at all fails with
// ErrNoEmailColumn.
func Extract(wb *Workbook, explicit []string) (*Extraction, error) {
	ex := &Extraction{}
	for _, s := range wb.Sheets {
		cols := DetectColumns(s, explicit)
		if len(cols) == 0 {
			continue
		}
		for _, c := range cols {
			ex.Columns = append(ex.Columns, Column{Sheet: s.Name, Index: c, Header: header(s, c)})
		}
		for r := range s.Rows {
			for _, c := range cols {
				raw := CleanCell(s.Cell(r, c))
				if strings.TrimSpace(raw) == "" {
					continue
				}
				pos := engine.Position{Sheet: s.Name, Row: r + 2, Column: c + 1, Header: header(s, c)}
				ex.Entries = append(ex.Entries, engine.NewEntry(len(ex.Entries), pos, raw))
			}
		}
	}
	if len(ex.Columns) == 0 {
		if len(explicit) > 0 {
			return nil, fmt.Errorf("%w: none of %q", ErrNoEmailColumn, explicit)
		}
		return nil, ErrNoEmailColumn
	}
	return ex, nil
}

func header(s *Sheet, col int) string {
	if col < len(s.Header) {
		return s.Header[col]
	}
	return ""
}
