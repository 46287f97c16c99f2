// Package classifier implements the optional external classification signal
// consulted by the decision router.
//
// Only the cleaned address and five booleans cross the trust boundary; no
// other cell of the source row is ever sent. A Classifier returns one
// engine.External per item, positionally aligned with the request. Items the
// provider answered with an invalid disposition or confidence come back as
// engine.Unavailable(); a failed call returns an error wrapping
// ErrUnavailable and the caller degrades the whole batch.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/JonMunkholm/mailclean/internal/engine"
)

var (
	// ErrUnavailable wraps every failed classifier call.
	ErrUnavailable = errors.New("classifier unavailable")
	// ErrSchema reports a response that cannot be aligned with the request.
	ErrSchema = errors.New("classifier response violates schema")
)

// Flags are the booleans shared with the classifier.
type Flags struct {
	SyntaxValid   bool `json:"syntax_valid"`
	DomainValid   bool `json:"domain_valid"`
	IsRoleAccount bool `json:"is_role_account"`
	IsDisposable  bool `json:"is_disposable"`
	IsConfusable  bool `json:"is_confusable"`
}

// Item is one classification request.
type Item struct {
	Email string `json:"email"`
	Flags Flags  `json:"flags"`
}

// ItemFor builds the request item for an analyzed entry.
func ItemFor(e *engine.Entry) Item {
	f := e.Features
	return Item{
		Email: e.Cleaned,
		Flags: Flags{
			SyntaxValid:   f.SyntaxValid,
			DomainValid:   f.DomainValid,
			IsRoleAccount: f.IsRoleAccount,
			IsDisposable:  f.IsDisposable,
			IsConfusable:  f.IsConfusable,
		},
	}
}

// Classifier returns one verdict per item.
type Classifier interface {
	Classify(ctx context.Context, items []Item) ([]engine.External, error)
}

// Result is one verdict on the wire. ID is set by LLM providers that are
// asked to echo the item index; the HTTP contract is positional.
type Result struct {
	ID          *int     `json:"id,omitempty"`
	Disposition string   `json:"disposition"`
	Confidence  *float64 `json:"confidence"`
	Reason      string   `json:"reason"`
}

// verdict validates a single result. Anything outside the contract becomes
// Unavailable for that item only.
func verdict(r Result) engine.External {
	action, ok := engine.ParseAction(r.Disposition)
	if !ok || action == engine.ActionNone {
		return engine.Unavailable()
	}
	if r.Confidence == nil {
		return engine.Unavailable()
	}
	c := *r.Confidence
	if math.IsNaN(c) || c < 0 || c > 1 {
		return engine.Unavailable()
	}
	return engine.Present(engine.Verdict{Disposition: action, Confidence: c, Reason: r.Reason})
}

// alignPositional maps results onto n items by position.
func alignPositional(results []Result, n int) ([]engine.External, error) {
	if len(results) != n {
		return nil, fmt.Errorf("%w: got %d results for %d items", ErrSchema, len(results), n)
	}
	out := make([]engine.External, n)
	for i, r := range results {
		out[i] = verdict(r)
	}
	return out, nil
}

// alignByID maps results onto n items by their echoed ID. Missing,
// repeated or out-of-range IDs leave the affected items Unavailable.
func alignByID(results []Result, n int) ([]engine.External, error) {
	if len(results) == 0 && n > 0 {
		return nil, fmt.Errorf("%w: empty results", ErrSchema)
	}
	out := make([]engine.External, n)
	seen := make([]bool, n)
	for i := range out {
		out[i] = engine.Unavailable()
	}
	for _, r := range results {
		if r.ID == nil || *r.ID < 0 || *r.ID >= n {
			continue
		}
		id := *r.ID
		if seen[id] {
			out[id] = engine.Unavailable()
			continue
		}
		seen[id] = true
		out[id] = verdict(r)
	}
	return out, nil
}
