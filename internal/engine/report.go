package engine

// RejectedRow lists an entry that was removed or needs review.
type RejectedRow struct {
	Sheet      string  `json:"sheet"`
	RowNumber  int     `json:"row_number"`
	ColName    string  `json:"col_name"`
	RawEmail   string  `json:"raw_email"`
	Action     Action  `json:"action"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// ChangeRow lists an entry whose value differs from the raw cell.
type ChangeRow struct {
	Sheet      string  `json:"sheet"`
	RowNumber  int     `json:"row_number"`
	ColName    string  `json:"col_name"`
	Original   string  `json:"original"`
	Cleaned    string  `json:"cleaned"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// DuplicateRow summarizes one canonical group that has duplicates or
// near-duplicate neighbors.
type DuplicateRow struct {
	CanonicalKey      string     `json:"canonical_key"`
	TotalCount        int        `json:"total_count"`
	KeptPosition      Position   `json:"kept_position"`
	RemovedPositions  []Position `json:"removed_positions"`
	NearDuplicateKeys []string   `json:"near_duplicate_keys"`
}

// Reports are the three tables derived from a finished run.
type Reports struct {
	Rejected   []RejectedRow  `json:"rejected"`
	Changes    []ChangeRow    `json:"changes"`
	Duplicates []DuplicateRow `json:"duplicates"`
}

// BuildReports derives the report tables. entries must be in extraction
// order; unrouted entries are skipped.
func BuildReports(entries []*Entry, dd DedupeResult) Reports {
	var r Reports
	for _, e := range entries {
		if !e.Routed() {
			continue
		}
		if e.Action == ActionRemove || e.Action == ActionReview {
			r.Rejected = append(r.Rejected, RejectedRow{
				Sheet:      e.Position.Sheet,
				RowNumber:  e.Position.Row,
				ColName:    e.Position.Header,
				RawEmail:   e.Raw,
				Action:     e.Action,
				Reason:     e.Reason,
				Confidence: e.Confidence,
			})
		}
		if e.Changed() {
			r.Changes = append(r.Changes, ChangeRow{
				Sheet:      e.Position.Sheet,
				RowNumber:  e.Position.Row,
				ColName:    e.Position.Header,
				Original:   e.Raw,
				Cleaned:    e.Cleaned,
				Reason:     changeReason(e),
				Confidence: e.Confidence,
			})
		}
	}

	for _, g := range dd.Groups {
		if len(g.Members) == 1 && len(g.NearDuplicates) == 0 {
			continue
		}
		row := DuplicateRow{
			CanonicalKey:      g.Key,
			TotalCount:        len(g.Members),
			KeptPosition:      g.Kept().Position,
			RemovedPositions:  []Position{},
			NearDuplicateKeys: []string{},
		}
		for _, m := range g.Members[1:] {
			row.RemovedPositions = append(row.RemovedPositions, m.Position)
		}
		row.NearDuplicateKeys = append(row.NearDuplicateKeys, g.NearDuplicates...)
		r.Duplicates = append(r.Duplicates, row)
	}
	return r
}

func changeReason(e *Entry) string {
	if e.Action == ActionFix {
		return e.Reason
	}
	return "normalized"
}

// Counters aggregate dispositions over a run. They are owned by a single
// writer; see core.Processor.
type Counters struct {
	Total                 int `json:"total"`
	Accepted              int `json:"accepted"`
	Fixed                 int `json:"fixed"`
	Removed               int `json:"removed"`
	Review                int `json:"review"`
	Duplicates            int `json:"duplicates"`
	NearDuplicatePairs    int `json:"near_duplicate_pairs"`
	ClassifierUnavailable int `json:"classifier_unavailable"`
	Unprocessed           int `json:"unprocessed"`
}

// Add counts one routed entry.
func (c *Counters) Add(e *Entry) {
	switch e.Action {
	case ActionAccept:
		c.Accepted++
	case ActionFix:
		c.Fixed++
	case ActionRemove:
		c.Removed++
	case ActionReview:
		c.Review++
	default:
		return
	}
	if e.External.Status == ExternalUnavailable {
		c.ClassifierUnavailable++
	}
}

// Merge adds o into c.
func (c *Counters) Merge(o Counters) {
	c.Total += o.Total
	c.Accepted += o.Accepted
	c.Fixed += o.Fixed
	c.Removed += o.Removed
	c.Review += o.Review
	c.Duplicates += o.Duplicates
	c.NearDuplicatePairs += o.NearDuplicatePairs
	c.ClassifierUnavailable += o.ClassifierUnavailable
	c.Unprocessed += o.Unprocessed
}
