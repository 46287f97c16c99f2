package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/mailclean/internal/classifier"
	"github.com/JonMunkholm/mailclean/internal/engine"
	"github.com/JonMunkholm/mailclean/internal/logging"
	"github.com/JonMunkholm/mailclean/internal/tabular"
)

// ErrRunCancelled is reported for runs stopped before every entry was routed.
var ErrRunCancelled = errors.New("run cancelled")

// Defaults for ProcessorConfig fields left at zero.
const (
	DefaultWorkers             = 4
	DefaultBatchSize           = 500
	DefaultClassifierBatchSize = 25
)

// ProcessorConfig sizes the worker pool.
type ProcessorConfig struct {
	Workers             int
	BatchSize           int
	ClassifierBatchSize int
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.ClassifierBatchSize <= 0 {
		c.ClassifierBatchSize = DefaultClassifierBatchSize
	}
	return c
}

// Processor drives entries through the engine. Batches are analyzed and
// routed by a bounded pool of workers; each entry belongs to exactly one
// batch, so no entry is touched by two goroutines. Counters are merged by a
// single reducer goroutine as batches complete.
type Processor struct {
	eng *engine.Engine
	cls classifier.Classifier
	cfg ProcessorConfig
}

// NewProcessor creates a processor. cls may be nil, in which case routing is
// deterministic only.
func NewProcessor(eng *engine.Engine, cls classifier.Classifier, cfg ProcessorConfig) *Processor {
	return &Processor{eng: eng, cls: cls, cfg: cfg.withDefaults()}
}

// Engine returns the engine the processor runs.
func (p *Processor) Engine() *engine.Engine { return p.eng }

// Outcome is the result of Process.
type Outcome struct {
	Counters engine.Counters
	Dedupe   engine.DedupeResult
	Reports  engine.Reports
}

// Process routes every entry, then canonicalizes and deduplicates the routed
// ones. progress, if set, is called from the reducer after each batch with
// the number of entries handled so far.
//
// When ctx ends, batches not yet started are abandoned and in-flight batches
// stop before their next entry; entries routed by then keep their decisions
// and still take part in duplicate detection. The returned error is then
// ctx.Err() and the Outcome describes the partial run.
func (p *Processor) Process(ctx context.Context, entries []*engine.Entry, progress func(done int, c engine.Counters)) (Outcome, error) {
	type batchResult struct {
		n int
		c engine.Counters
	}

	var total engine.Counters
	handled := 0
	results := make(chan batchResult, p.cfg.Workers)
	reduced := make(chan struct{})
	go func() {
		defer close(reduced)
		for r := range results {
			total.Merge(r.c)
			handled += r.n
			if progress != nil {
				progress(handled, total)
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)

	next := 0
	for next < len(entries) {
		if ctx.Err() != nil {
			break
		}
		end := min(next+p.cfg.BatchSize, len(entries))
		batch := entries[next:end]
		next = end

		g.Go(func() error {
			results <- batchResult{n: len(batch), c: p.processBatch(ctx, batch)}
			return nil
		})
	}
	_ = g.Wait()

	if skipped := len(entries) - next; skipped > 0 {
		results <- batchResult{n: skipped, c: engine.Counters{Total: skipped, Unprocessed: skipped}}
	}
	close(results)
	<-reduced

	dd := p.eng.Finalize(entries)
	total.Duplicates = dd.Duplicates()
	total.NearDuplicatePairs = len(dd.NearPairs)

	out := Outcome{
		Counters: total,
		Dedupe:   dd,
		Reports:  engine.BuildReports(entries, dd),
	}
	return out, ctx.Err()
}

// processBatch analyzes, classifies and routes one batch. It is the only
// writer of the batch's entries.
func (p *Processor) processBatch(ctx context.Context, batch []*engine.Entry) engine.Counters {
	c := engine.Counters{Total: len(batch)}

	for _, e := range batch {
		p.eng.Analyze(e)
	}

	ext := p.classify(ctx, batch)

	for i, e := range batch {
		if ctx.Err() != nil {
			break
		}
		if err := p.eng.Route(e, ext[i]); err != nil {
			logging.FromContext(ctx).Error("route entry", "position", e.Position.String(), "error", err)
			continue
		}
		c.Add(e)
	}
	for _, e := range batch {
		if !e.Routed() {
			c.Unprocessed++
		}
	}
	return c
}

// classify returns one External per batch entry. Entries that the router
// settles on its own get the zero (absent) value, as does everything when no
// classifier is configured.
func (p *Processor) classify(ctx context.Context, batch []*engine.Entry) []engine.External {
	ext := make([]engine.External, len(batch))
	if p.cls == nil {
		return ext
	}

	var idx []int
	for i, e := range batch {
		if p.eng.NeedsClassifier(e) {
			idx = append(idx, i)
		}
	}

	for start := 0; start < len(idx); start += p.cfg.ClassifierBatchSize {
		if ctx.Err() != nil {
			return ext
		}
		chunk := idx[start:min(start+p.cfg.ClassifierBatchSize, len(idx))]
		items := make([]classifier.Item, len(chunk))
		for j, i := range chunk {
			items[j] = classifier.ItemFor(batch[i])
		}

		verdicts, err := p.cls.Classify(ctx, items)
		if err == nil && len(verdicts) != len(items) {
			err = fmt.Errorf("%w: got %d verdicts for %d items", classifier.ErrSchema, len(verdicts), len(items))
		}
		if err != nil {
			logging.FromContext(ctx).Warn("classifier batch degraded to deterministic routing",
				"tag", engine.ClassifierUnavailableTag,
				"items", len(items),
				"error", err,
			)
			for _, i := range chunk {
				ext[i] = engine.Unavailable()
			}
			continue
		}
		for j, i := range chunk {
			ext[i] = verdicts[j]
		}
	}
	return ext
}

// Run executes a whole file: read, extract, process, rebuild. Phase changes
// and batch completions are reported through progress. A cancelled run
// returns a result holding the partial work together with ErrRunCancelled.
func (p *Processor) Run(ctx context.Context, in Input, progress ProgressCallback) (*RunResult, error) {
	start := time.Now()
	logger := logging.FromContext(ctx)

	snap := RunProgress{
		RunID:      logging.RunID(ctx),
		Phase:      PhaseReading,
		FileName:   in.FileName,
		BytesTotal: int64(len(in.Data)),
	}
	notify := func() {
		if progress != nil {
			progress(snap)
		}
	}
	notify()

	result := &RunResult{RunID: snap.RunID, FileName: in.FileName}
	fail := func(err error) (*RunResult, error) {
		result.Phase = PhaseFailed
		result.Error = err.Error()
		result.Duration = time.Since(start)
		snap.Phase = PhaseFailed
		snap.Error = err.Error()
		notify()
		return result, err
	}

	wb, err := tabular.Read(in.FileName, bytes.NewReader(in.Data), int64(len(in.Data)), func(read, total int64) {
		snap.BytesRead = read
	})
	if err != nil {
		return fail(fmt.Errorf("read %s: %w", in.FileName, err))
	}
	snap.BytesRead = snap.BytesTotal

	ex, err := tabular.Extract(wb, in.Columns)
	if err != nil {
		return fail(fmt.Errorf("extract %s: %w", in.FileName, err))
	}
	result.Columns = ex.Columns
	result.Entries = ex.Entries

	logger.Info("run extracted entries",
		"file", in.FileName,
		"sheets", len(wb.Sheets),
		"columns", len(ex.Columns),
		"entries", len(ex.Entries),
	)

	snap.Phase = PhaseAnalyzing
	snap.Entries = len(ex.Entries)
	notify()

	out, err := p.Process(ctx, ex.Entries, func(done int, c engine.Counters) {
		snap.Routed = done
		snap.Counters = c
		notify()
	})
	cancelled := err != nil

	snap.Phase = PhaseDeduplicating
	snap.Counters = out.Counters
	notify()

	result.Counters = out.Counters
	result.Reports = out.Reports
	result.Output = tabular.Rebuild(wb, ex.Entries)
	result.Duration = time.Since(start)

	if cancelled {
		result.Phase = PhaseCancelled
		result.Error = ErrRunCancelled.Error()
		snap.Phase = PhaseCancelled
		snap.Error = result.Error
		notify()
		logger.Warn("run cancelled",
			"file", in.FileName,
			"unprocessed", out.Counters.Unprocessed,
			"duration_ms", result.Duration.Milliseconds(),
		)
		return result, fmt.Errorf("%w: %w", ErrRunCancelled, err)
	}

	result.Phase = PhaseComplete
	snap.Phase = PhaseComplete
	notify()

	logger.Info("run complete",
		"file", in.FileName,
		"accepted", out.Counters.Accepted,
		"fixed", out.Counters.Fixed,
		"removed", out.Counters.Removed,
		"review", out.Counters.Review,
		"duplicates", out.Counters.Duplicates,
		"classifier_unavailable", out.Counters.ClassifierUnavailable,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

