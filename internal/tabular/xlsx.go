package tabular

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX loads every sheet of a workbook in order. The first row of each
// sheet is its header; sheets without any row are skipped.
func ReadXLSX(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	wb := &Workbook{Format: FormatXLSX}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		if len(rows) == 0 {
			continue
		}
		wb.Sheets = append(wb.Sheets, &Sheet{Name: name, Header: rows[0], Rows: rows[1:]})
	}
	if len(wb.Sheets) == 0 {
		return nil, ErrEmptyFile
	}
	return wb, nil
}

// WriteXLSX writes every sheet of wb as a new workbook.
func WriteXLSX(w io.Writer, wb *Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	defaultSheet := f.GetSheetName(0)
	for i, s := range wb.Sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, s.Name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("create sheet %q: %w", s.Name, err)
		}

		sw, err := f.NewStreamWriter(s.Name)
		if err != nil {
			return fmt.Errorf("stream sheet %q: %w", s.Name, err)
		}
		if err := writeRow(sw, 1, s.Header); err != nil {
			return err
		}
		for i, row := range s.Rows {
			if err := writeRow(sw, i+2, row); err != nil {
				return err
			}
		}
		if err := sw.Flush(); err != nil {
			return fmt.Errorf("flush sheet %q: %w", s.Name, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeRow(sw *excelize.StreamWriter, rowNum int, row []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	if err := sw.SetRow(cell, values); err != nil {
		return fmt.Errorf("write row %d: %w", rowNum, err)
	}
	return nil
}
