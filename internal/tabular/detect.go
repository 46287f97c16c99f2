package tabular

import (
	"regexp"
	"strings"
)

// Header patterns in priority order. Matching is exact on the trimmed,
// lowercased header so columns like "email opt-in" are not picked up.
var headerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^email$`),
	regexp.MustCompile(`^email[_\s]address$`),
	regexp.MustCompile(`^e[-_\s]?mail$`),
	regexp.MustCompile(`^work[_\s]email$`),
	regexp.MustCompile(`^business[_\s]email$`),
	regexp.MustCompile(`^contact[_\s]email$`),
	regexp.MustCompile(`^primary[_\s]email$`),
	regexp.MustCompile(`^email[_\s]1$`),
	regexp.MustCompile(`^email[_\s]2$`),
	regexp.MustCompile(`^personal[_\s]email$`),
	regexp.MustCompile(`^home[_\s]email$`),
	regexp.MustCompile(`^office[_\s]email$`),
	regexp.MustCompile(`^customer[_\s]email$`),
	regexp.MustCompile(`^client[_\s]email$`),
	regexp.MustCompile(`^user[_\s]email$`),
	regexp.MustCompile(`^employee[_\s]email$`),
	regexp.MustCompile(`^member[_\s]email$`),
	regexp.MustCompile(`^subscriber[_\s]email$`),
	regexp.MustCompile(`^emailaddress$`),
	regexp.MustCompile(`^email_addr$`),
	regexp.MustCompile(`^electronic[_\s]mail$`),
}

var emailLike = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// Content sampling bounds for the fallback detector.
const (
	ContentSampleSize = 200
	ContentMinRatio   = 0.5
)

// DetectColumns returns the 0-based email columns of s.
//
// An explicit list of header names wins over detection; names are matched
// case-insensitively and unknown names are ignored. Otherwise every header
// matching a known pattern is an email column, ordered by pattern priority.
// When no header matches, the column whose first ContentSampleSize non-empty
// cells look most like addresses is used, provided more than half of them do.
func DetectColumns(s *Sheet, explicit []string) []int {
	if len(explicit) > 0 {
		return explicitColumns(s, explicit)
	}
	if cols := headerColumns(s); len(cols) > 0 {
		return cols
	}
	if col, ok := contentColumn(s); ok {
		return []int{col}
	}
	return nil
}

func explicitColumns(s *Sheet, names []string) []int {
	var cols []int
	seen := make(map[int]bool)
	for _, name := range names {
		want := strings.TrimSpace(name)
		for i, h := range s.Header {
			if strings.EqualFold(strings.TrimSpace(h), want) && !seen[i] {
				seen[i] = true
				cols = append(cols, i)
			}
		}
	}
	return cols
}

func headerColumns(s *Sheet) []int {
	type match struct{ col, priority int }
	var matches []match
	for i, h := range s.Header {
		clean := strings.ToLower(strings.TrimSpace(h))
		for p, re := range headerPatterns {
			if re.MatchString(clean) {
				matches = append(matches, match{i, p})
				break
			}
		}
	}
	// Stable insertion sort: few columns, ties keep sheet order.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].priority < matches[j-1].priority; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
	cols := make([]int, len(matches))
	for i, m := range matches {
		cols[i] = m.col
	}
	return cols
}

func contentColumn(s *Sheet) (int, bool) {
	best, bestRatio := -1, ContentMinRatio
	for col := 0; col < s.Width(); col++ {
		sampled, hits := 0, 0
		for row := 0; row < len(s.Rows) && sampled < ContentSampleSize; row++ {
			v := strings.TrimSpace(s.Cell(row, col))
			if v == "" {
				continue
			}
			sampled++
			if emailLike.MatchString(v) {
				hits++
			}
		}
		if sampled == 0 {
			continue
		}
		if ratio := float64(hits) / float64(sampled); ratio > bestRatio {
			best, bestRatio = col, ratio
		}
	}
	return best, best >= 0
}
