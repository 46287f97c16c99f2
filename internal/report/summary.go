package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/JonMunkholm/mailclean/internal/engine"
	"github.com/JonMunkholm/mailclean/internal/tabular"
)

// WriteSummary renders the run counters and detected columns as aligned
// text tables.
func WriteSummary(w io.Writer, c engine.Counters, cols []tabular.Column) error {
	counts := [][]string{
		{"entries", strconv.Itoa(c.Total)},
		{"accepted", strconv.Itoa(c.Accepted)},
		{"fixed", strconv.Itoa(c.Fixed)},
		{"removed", strconv.Itoa(c.Removed)},
		{"review", strconv.Itoa(c.Review)},
		{"duplicates", strconv.Itoa(c.Duplicates)},
		{"near-duplicate pairs", strconv.Itoa(c.NearDuplicatePairs)},
	}
	if c.ClassifierUnavailable > 0 {
		counts = append(counts, []string{"classifier unavailable", strconv.Itoa(c.ClassifierUnavailable)})
	}
	if c.Unprocessed > 0 {
		counts = append(counts, []string{"unprocessed", strconv.Itoa(c.Unprocessed)})
	}
	if _, err := io.WriteString(w, FormatTable([]string{"result", "count"}, counts)); err != nil {
		return err
	}

	if len(cols) == 0 {
		return nil
	}
	colRows := make([][]string, len(cols))
	for i, col := range cols {
		colRows[i] = []string{col.Sheet, strconv.Itoa(col.Index + 1), col.Header}
	}
	_, err := fmt.Fprintf(w, "\n%s", FormatTable([]string{"sheet", "column", "header"}, colRows))
	return err
}

// FormatTable renders a pipe table padded by display width, so wide runes in
// sheet names and headers stay aligned.
func FormatTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	measure := func(row []string) {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := runewidth.StringWidth(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(header)
	for _, r := range rows {
		measure(r)
	}
	for i := range widths {
		if widths[i] < 3 {
			widths[i] = 3
		}
	}

	var sb strings.Builder
	writeRow := func(row []string) {
		sb.WriteString("|")
		for i, w := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			sb.WriteString(" ")
			sb.WriteString(runewidth.FillRight(cell, w))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}

	writeRow(header)
	sb.WriteString("|")
	for _, w := range widths {
		sb.WriteString(strings.Repeat("-", w+2))
		sb.WriteString("|")
	}
	sb.WriteString("\n")
	for _, r := range rows {
		writeRow(r)
	}
	return sb.String()
}
