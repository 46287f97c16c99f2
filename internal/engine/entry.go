package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAlreadyRouted is returned when an entry that already has an action is
// routed again.
var ErrAlreadyRouted = errors.New("entry already routed")

// Action is the final disposition of an entry.
type Action string

const (
	ActionNone   Action = ""
	ActionAccept Action = "accept"
	ActionFix    Action = "fix"
	ActionRemove Action = "remove"
	ActionReview Action = "review"
)

// ParseAction maps a disposition string to an Action. The legacy names
// fix_auto and suppress are accepted as fix and remove.
func ParseAction(s string) (Action, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept":
		return ActionAccept, true
	case "fix", "fix_auto":
		return ActionFix, true
	case "remove", "suppress":
		return ActionRemove, true
	case "review":
		return ActionReview, true
	default:
		return ActionNone, false
	}
}

// Keeps reports whether entries with this action carry a canonical key.
func (a Action) Keeps() bool {
	return a == ActionAccept || a == ActionFix
}

// Position locates a cell in the source workbook. Row and Column are 1-based
// spreadsheet coordinates; the header occupies row 1.
type Position struct {
	Sheet  string `json:"sheet"`
	Row    int    `json:"row"`
	Column int    `json:"column"`
	Header string `json:"header"`
}

func (p Position) String() string {
	return fmt.Sprintf("%s!R%dC%d", p.Sheet, p.Row, p.Column)
}

// Features are the per-entry signals produced by stages 2-5.
type Features struct {
	SyntaxValid  bool   `json:"syntax_valid"`
	SyntaxReason string `json:"syntax_reason,omitempty"`

	DomainValid    bool   `json:"domain_valid"`
	DomainReason   string `json:"domain_reason,omitempty"`
	ASCIIDomain    string `json:"ascii_domain,omitempty"`
	TLD            string `json:"tld,omitempty"`
	TLDRecognized  bool   `json:"tld_recognized"`
	IsConfusable   bool   `json:"is_confusable"`
	ConfusableWith string `json:"confusable_with,omitempty"`

	TypoSuggestion string  `json:"typo_suggestion,omitempty"`
	TypoConfidence float64 `json:"typo_confidence,omitempty"`
	TypoSource     string  `json:"typo_source,omitempty"`

	IsRoleAccount bool `json:"is_role_account"`
	IsDisposable  bool `json:"is_disposable"`

	// Advisory only; never consulted by the router.
	IsFreeMail    bool `json:"is_free_mail"`
	IsTestAddress bool `json:"is_test_address"`
}

// Verdict is a disposition suggested by the external classifier.
type Verdict struct {
	Disposition Action  `json:"disposition"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

// ExternalStatus tells whether a classifier verdict is available.
type ExternalStatus int

const (
	// ExternalAbsent means the classifier was not consulted.
	ExternalAbsent ExternalStatus = iota
	// ExternalPresent means Verdict holds a valid classifier answer.
	ExternalPresent
	// ExternalUnavailable means the classifier was consulted and failed.
	ExternalUnavailable
)

func (s ExternalStatus) String() string {
	switch s {
	case ExternalPresent:
		return "present"
	case ExternalUnavailable:
		return "unavailable"
	default:
		return "absent"
	}
}

// MarshalText renders the status by name in JSON output.
func (s ExternalStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// External is the classifier outcome for one entry: a verdict or an explicit
// unavailable marker, never an error.
type External struct {
	Status  ExternalStatus `json:"status"`
	Verdict Verdict        `json:"verdict"`
}

// Present wraps a classifier verdict.
func Present(v Verdict) External {
	return External{Status: ExternalPresent, Verdict: v}
}

// Unavailable marks a failed classifier consultation.
func Unavailable() External {
	return External{Status: ExternalUnavailable}
}

// DuplicateInfo is recorded on every non-kept member of a canonical group.
// Kept is a position, not a pointer: duplicates never reach into the kept entry.
type DuplicateInfo struct {
	Key  string   `json:"key"`
	Kept Position `json:"kept"`
}

// Entry is one occurrence of an email value at a spreadsheet position.
type Entry struct {
	// Seq is the extraction order and decides which duplicate is kept.
	Seq      int      `json:"seq"`
	Position Position `json:"position"`
	Raw      string   `json:"raw"`
	Cleaned  string   `json:"cleaned"`

	Features Features `json:"features"`
	External External `json:"external"`

	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`

	CanonicalKey string         `json:"canonical_key,omitempty"`
	Duplicate    *DuplicateInfo `json:"duplicate,omitempty"`
}

// NewEntry creates an unprocessed entry.
func NewEntry(seq int, pos Position, raw string) *Entry {
	return &Entry{Seq: seq, Position: pos, Raw: raw, Cleaned: raw}
}

// Routed reports whether the entry has its final action.
func (e *Entry) Routed() bool {
	return e.Action != ActionNone
}

// IsDuplicate reports whether the entry lost its canonical group to an
// earlier occurrence.
func (e *Entry) IsDuplicate() bool {
	return e.Duplicate != nil
}

// Changed reports whether the current value differs from the raw value.
func (e *Entry) Changed() bool {
	return e.Cleaned != e.Raw
}
