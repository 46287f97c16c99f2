// Package report serializes the rejected, changes and duplicates tables of a
// finished run and renders the text summary printed by the CLI.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/mailclean/internal/engine"
	"github.com/JonMunkholm/mailclean/internal/tabular"
)

// Kind names one report table.
type Kind string

const (
	KindRejected   Kind = "rejected"
	KindChanges    Kind = "changes"
	KindDuplicates Kind = "duplicates"
)

// Kinds lists every report in output order.
var Kinds = []Kind{KindRejected, KindChanges, KindDuplicates}

// ParseKind validates a report name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown report %q", s)
}

// FileName is the conventional output file name for k in the given format.
func (k Kind) FileName(ext string) string {
	return string(k) + "." + ext
}

// Table flattens one report to a header and string rows. Positions render as
// Sheet!R<row>C<col> and lists are joined with "; ".
func Table(k Kind, r engine.Reports) ([]string, [][]string) {
	switch k {
	case KindRejected:
		header := []string{"sheet", "row_number", "col_name", "raw_email", "action", "reason", "confidence"}
		rows := make([][]string, len(r.Rejected))
		for i, x := range r.Rejected {
			rows[i] = []string{x.Sheet, strconv.Itoa(x.RowNumber), x.ColName, x.RawEmail, string(x.Action), x.Reason, formatConfidence(x.Confidence)}
		}
		return header, rows
	case KindChanges:
		header := []string{"sheet", "row_number", "col_name", "original", "cleaned", "reason", "confidence"}
		rows := make([][]string, len(r.Changes))
		for i, x := range r.Changes {
			rows[i] = []string{x.Sheet, strconv.Itoa(x.RowNumber), x.ColName, x.Original, x.Cleaned, x.Reason, formatConfidence(x.Confidence)}
		}
		return header, rows
	case KindDuplicates:
		header := []string{"canonical_key", "total_count", "kept_position", "removed_positions", "near_duplicate_keys"}
		rows := make([][]string, len(r.Duplicates))
		for i, x := range r.Duplicates {
			removed := make([]string, len(x.RemovedPositions))
			for j, p := range x.RemovedPositions {
				removed[j] = p.String()
			}
			rows[i] = []string{x.CanonicalKey, strconv.Itoa(x.TotalCount), x.KeptPosition.String(),
				strings.Join(removed, "; "), strings.Join(x.NearDuplicateKeys, "; ")}
		}
		return header, rows
	}
	return nil, nil
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 2, 64)
}

// WriteCSV writes one report as CSV.
func WriteCSV(w io.Writer, k Kind, r engine.Reports) error {
	header, rows := Table(k, r)
	if header == nil {
		return fmt.Errorf("unknown report %q", k)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write %s report: %w", k, err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s report: %w", k, err)
	}
	return nil
}

// WriteJSON writes one report as a JSON array. Empty reports encode as [].
func WriteJSON(w io.Writer, k Kind, r engine.Reports) error {
	var v any
	switch k {
	case KindRejected:
		v = nonNil(r.Rejected)
	case KindChanges:
		v = nonNil(r.Changes)
	case KindDuplicates:
		v = nonNil(r.Duplicates)
	default:
		return fmt.Errorf("unknown report %q", k)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// WriteXLSX writes all three reports as sheets of one workbook.
func WriteXLSX(w io.Writer, r engine.Reports) error {
	wb := &tabular.Workbook{Format: tabular.FormatXLSX}
	for _, k := range Kinds {
		header, rows := Table(k, r)
		wb.Sheets = append(wb.Sheets, &tabular.Sheet{Name: string(k), Header: header, Rows: rows})
	}
	return tabular.WriteXLSX(w, wb)
}
