package tabular

import (
	"strings"

	"github.com/JonMunkholm/mailclean/internal/engine"
)

// Rebuild returns a cleaned copy of wb. The source workbook is not modified.
//
//   - accept and fix cells receive the cleaned address
//   - remove cells are blanked
//   - review cells and unrouted cells keep their original text
//   - rows holding a duplicate entry are blanked entirely
//
// Data rows left blank are dropped, as are unnamed columns that carry no
// value in any remaining row.
func Rebuild(wb *Workbook, entries []*engine.Entry) *Workbook {
	out := &Workbook{Format: wb.Format}

	bySheet := make(map[string][]*engine.Entry)
	for _, e := range entries {
		bySheet[e.Position.Sheet] = append(bySheet[e.Position.Sheet], e)
	}

	for _, s := range wb.Sheets {
		rows := make([][]string, len(s.Rows))
		for i, r := range s.Rows {
			rows[i] = append([]string(nil), r...)
		}
		dropped := make(map[int]bool)

		for _, e := range bySheet[s.Name] {
			r, c := e.Position.Row-2, e.Position.Column-1
			if r < 0 || r >= len(rows) || c < 0 || c >= len(rows[r]) {
				continue
			}
			if e.IsDuplicate() {
				dropped[r] = true
				continue
			}
			switch e.Action {
			case engine.ActionAccept, engine.ActionFix:
				rows[r][c] = e.Cleaned
			case engine.ActionRemove:
				rows[r][c] = ""
			}
		}

		kept := make([][]string, 0, len(rows))
		for i, r := range rows {
			if dropped[i] || isBlankRow(r) {
				continue
			}
			kept = append(kept, r)
		}

		header, kept := dropEmptyUnnamed(append([]string(nil), s.Header...), kept)
		out.Sheets = append(out.Sheets, &Sheet{Name: s.Name, Header: header, Rows: kept})
	}
	return out
}

func dropEmptyUnnamed(header []string, rows [][]string) ([]string, [][]string) {
	width := len(header)
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}

	var keep []int
	for c := 0; c < width; c++ {
		if c < len(header) && strings.TrimSpace(header[c]) != "" {
			keep = append(keep, c)
			continue
		}
		for _, r := range rows {
			if c < len(r) && strings.TrimSpace(r[c]) != "" {
				keep = append(keep, c)
				break
			}
		}
	}
	if len(keep) == width {
		return header, rows
	}

	pick := func(r []string) []string {
		out := make([]string, 0, len(keep))
		for _, c := range keep {
			if c < len(r) {
				out = append(out, r[c])
			} else {
				out = append(out, "")
			}
		}
		return out
	}
	newRows := make([][]string, len(rows))
	for i, r := range rows {
		newRows[i] = pick(r)
	}
	return pick(header), newRows
}
