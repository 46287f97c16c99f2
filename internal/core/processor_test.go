package core

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/JonMunkholm/mailclean/internal/classifier"
	"github.com/JonMunkholm/mailclean/internal/engine"
	"github.com/JonMunkholm/mailclean/internal/policy"
)

func testEngine(t testing.TB) *engine.Engine {
	t.Helper()
	p, err := policy.Default(policy.Options{PublicSuffixFallback: true})
	if err != nil {
		t.Fatalf("policy.Default() error = %v", err)
	}
	eng, err := engine.New(p, engine.DefaultOptions())
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	return eng
}

func entriesOf(raws ...string) []*engine.Entry {
	out := make([]*engine.Entry, len(raws))
	for i, raw := range raws {
		out[i] = engine.NewEntry(i, engine.Position{Sheet: "main", Row: i + 2, Column: 1, Header: "Email"}, raw)
	}
	return out
}

// classifierFunc adapts a function to classifier.Classifier.
type classifierFunc func(ctx context.Context, items []classifier.Item) ([]engine.External, error)

func (f classifierFunc) Classify(ctx context.Context, items []classifier.Item) ([]engine.External, error) {
	return f(ctx, items)
}

var sample = []string{
	"user@gmial.com",
	"admin@company.com",
	"jane.doe@gmail.com",
	"janedoe@gmail.com",
	"bob@example.com",
}

func TestProcessor_Process(t *testing.T) {
	proc := NewProcessor(testEngine(t), nil, ProcessorConfig{Workers: 2, BatchSize: 2})
	entries := entriesOf(sample...)

	var calls int
	var lastDone int
	out, err := proc.Process(context.Background(), entries, func(done int, c engine.Counters) {
		calls++
		lastDone = done
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	want := engine.Counters{Total: 5, Accepted: 3, Fixed: 1, Removed: 1, Duplicates: 1}
	if out.Counters != want {
		t.Errorf("Counters = %+v, want %+v", out.Counters, want)
	}
	if calls != 3 || lastDone != 5 {
		t.Errorf("progress called %d times, last done %d; want 3, 5", calls, lastDone)
	}
	if entries[0].Cleaned != "user@gmail.com" {
		t.Errorf("Cleaned = %q, want user@gmail.com", entries[0].Cleaned)
	}
	if !entries[3].IsDuplicate() || entries[3].Duplicate.Kept != entries[2].Position {
		t.Errorf("janedoe duplicate = %+v, want kept at %s", entries[3].Duplicate, entries[2].Position)
	}
	if len(out.Reports.Rejected) != 1 || len(out.Reports.Changes) != 1 || len(out.Reports.Duplicates) != 1 {
		t.Errorf("Reports = %d rejected, %d changes, %d duplicates; want 1 each",
			len(out.Reports.Rejected), len(out.Reports.Changes), len(out.Reports.Duplicates))
	}
}

func TestProcessor_ClassifierVerdict(t *testing.T) {
	var seen []string
	cls := classifierFunc(func(ctx context.Context, items []classifier.Item) ([]engine.External, error) {
		out := make([]engine.External, len(items))
		for i, it := range items {
			seen = append(seen, it.Email)
			if it.Email == "bob@example.com" {
				out[i] = engine.Present(engine.Verdict{Disposition: engine.ActionRemove, Confidence: 0.99, Reason: "known spam trap"})
			}
		}
		return out, nil
	})

	// One worker keeps the classifier calls sequential for the seen slice.
	proc := NewProcessor(testEngine(t), cls, ProcessorConfig{Workers: 1, BatchSize: 10, ClassifierBatchSize: 2})
	entries := entriesOf(sample...)
	out, err := proc.Process(context.Background(), entries, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	for _, email := range seen {
		if email == "admin@company.com" {
			t.Error("role account removed by policy was sent to the classifier")
		}
	}
	if len(seen) != 4 {
		t.Errorf("classifier saw %d items, want 4", len(seen))
	}
	bob := entries[4]
	if bob.Action != engine.ActionRemove {
		t.Errorf("bob Action = %q, want remove", bob.Action)
	}
	if out.Counters.Removed != 2 || out.Counters.Accepted != 2 {
		t.Errorf("Counters = %+v, want 2 removed and 2 accepted", out.Counters)
	}
}

func TestProcessor_ClassifierUnavailable(t *testing.T) {
	cls := classifierFunc(func(ctx context.Context, items []classifier.Item) ([]engine.External, error) {
		return nil, classifier.ErrUnavailable
	})
	proc := NewProcessor(testEngine(t), cls, ProcessorConfig{Workers: 2, BatchSize: 2})
	entries := entriesOf(sample...)

	out, err := proc.Process(context.Background(), entries, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if out.Counters.ClassifierUnavailable != 4 {
		t.Errorf("ClassifierUnavailable = %d, want 4", out.Counters.ClassifierUnavailable)
	}
	if entries[4].Action != engine.ActionAccept {
		t.Errorf("deterministic accept changed to %q", entries[4].Action)
	}
	if entries[1].External.Status != engine.ExternalAbsent {
		t.Errorf("policy removal External = %v, want absent", entries[1].External.Status)
	}
	if !strings.Contains(entries[4].Reason, engine.ClassifierUnavailableTag) {
		t.Errorf("Reason = %q, want %s tag", entries[4].Reason, engine.ClassifierUnavailableTag)
	}
}

func TestProcessor_ShortVerdictsDegrade(t *testing.T) {
	cls := classifierFunc(func(ctx context.Context, items []classifier.Item) ([]engine.External, error) {
		return []engine.External{{}}, nil
	})
	proc := NewProcessor(testEngine(t), cls, ProcessorConfig{ClassifierBatchSize: 3})
	entries := entriesOf("a@example.com", "b@example.com", "c@example.com")

	out, err := proc.Process(context.Background(), entries, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out.Counters.ClassifierUnavailable != 3 {
		t.Errorf("ClassifierUnavailable = %d, want 3", out.Counters.ClassifierUnavailable)
	}
}

func TestProcessor_CancelBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc := NewProcessor(testEngine(t), nil, ProcessorConfig{BatchSize: 2})
	entries := entriesOf(sample...)
	out, err := proc.Process(ctx, entries, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() error = %v, want context.Canceled", err)
	}
	want := engine.Counters{Total: 5, Unprocessed: 5}
	if out.Counters != want {
		t.Errorf("Counters = %+v, want %+v", out.Counters, want)
	}
	for _, e := range entries {
		if e.Routed() || e.CanonicalKey != "" {
			t.Errorf("%q routed after cancel: %q", e.Raw, e.Action)
		}
	}
}

func TestProcessor_CancelMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	cls := classifierFunc(func(ctx context.Context, items []classifier.Item) ([]engine.External, error) {
		if calls.Add(1) == 2 {
			cancel()
			return nil, ctx.Err()
		}
		return make([]engine.External, len(items)), nil
	})

	proc := NewProcessor(testEngine(t), cls, ProcessorConfig{Workers: 1, BatchSize: 2})
	entries := entriesOf("a@example.com", "b@example.com", "c@example.com", "d@example.com", "a@example.com", "f@example.com")
	out, err := proc.Process(ctx, entries, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() error = %v, want context.Canceled", err)
	}

	want := engine.Counters{Total: 6, Accepted: 2, Unprocessed: 4}
	if out.Counters != want {
		t.Errorf("Counters = %+v, want %+v", out.Counters, want)
	}
	for i, e := range entries {
		if routed := i < 2; e.Routed() != routed {
			t.Errorf("entry %d routed = %v, want %v", i, e.Routed(), routed)
		}
	}
	// The unrouted repeat of a@example.com is not a duplicate.
	if entries[4].IsDuplicate() {
		t.Error("unrouted entry marked duplicate")
	}
	if entries[0].CanonicalKey != "a@example.com" {
		t.Errorf("CanonicalKey = %q, want a@example.com", entries[0].CanonicalKey)
	}
}

func TestProcessor_Run(t *testing.T) {
	proc := NewProcessor(testEngine(t), nil, ProcessorConfig{})
	data := []byte("Name,Email\nUser,user@gmial.com\nAdmin,admin@company.com\nJane,jane.doe@gmail.com\nJane 2,janedoe@gmail.com\n")

	var phases []RunPhase
	result, err := proc.Run(context.Background(), Input{FileName: "contacts.csv", Data: data}, func(p RunProgress) {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantPhases := []RunPhase{PhaseReading, PhaseAnalyzing, PhaseDeduplicating, PhaseComplete}
	if strings.Join(phaseStrings(phases), ",") != strings.Join(phaseStrings(wantPhases), ",") {
		t.Errorf("phases = %v, want %v", phases, wantPhases)
	}
	if result.Phase != PhaseComplete || result.Error != "" {
		t.Errorf("result phase %q error %q", result.Phase, result.Error)
	}
	if len(result.Entries) != 4 || len(result.Columns) != 1 {
		t.Errorf("got %d entries in %d columns, want 4 in 1", len(result.Entries), len(result.Columns))
	}

	out := result.Output.Sheets[0]
	wantRows := [][]string{{"User", "user@gmail.com"}, {"Admin", ""}, {"Jane", "jane.doe@gmail.com"}}
	if len(out.Rows) != len(wantRows) {
		t.Fatalf("output rows = %v, want %v", out.Rows, wantRows)
	}
	for i := range wantRows {
		if strings.Join(out.Rows[i], "|") != strings.Join(wantRows[i], "|") {
			t.Errorf("row %d = %v, want %v", i, out.Rows[i], wantRows[i])
		}
	}
}

func TestProcessor_RunErrors(t *testing.T) {
	proc := NewProcessor(testEngine(t), nil, ProcessorConfig{})

	tests := []struct {
		name    string
		in      Input
		wantErr string
	}{
		{"unsupported format", Input{FileName: "list.xls", Data: []byte("x")}, "unsupported file format"},
		{"no email column", Input{FileName: "list.csv", Data: []byte("Name,Phone\nJane,555\n")}, "no email column found"},
		{"explicit column missing", Input{FileName: "list.csv", Data: []byte("Email\na@b.com\n"), Columns: []string{"Backup"}}, "no email column found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := proc.Run(context.Background(), tt.in, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Run() error = %v, want %q", err, tt.wantErr)
			}
			if result.Phase != PhaseFailed {
				t.Errorf("Phase = %q, want failed", result.Phase)
			}
		})
	}
}

func phaseStrings(ps []RunPhase) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
