// Package core orchestrates cleaning runs over spreadsheet files.
//
// It sits between the transport layers (HTTP handlers, the CLI) and the
// engine, and holds no domain rules of its own.
//
// # Processing
//
// A [Processor] reads a CSV or XLSX file, extracts one entry per email cell
// and routes the entries in batches on a bounded worker pool. Entries whose
// deterministic outcome can still change are sent to the optional external
// classifier in sub-batches; a failed call degrades those entries to
// deterministic routing instead of failing the run. Counters are merged by
// a single reducer as batches complete. Once every batch is done the routed
// entries are canonicalized and deduplicated, the reports are built and the
// cleaned workbook is rebuilt.
//
// # Runs
//
// [Service] runs files in the background under a [RunLimiter]:
//
//	runID, err := svc.StartRun(ctx, core.Input{FileName: "contacts.xlsx", Data: data})
//	ch, _ := svc.SubscribeProgress(runID)
//	for p := range ch {
//	    fmt.Println(p.Phase, p.Percent())
//	}
//	result, _ := svc.GetRunResult(ctx, runID)
//
// Cancelling a run abandons the remaining batches. Entries routed before the
// cancel keep their decisions and appear in the reports and the output.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]. Codes
// are grouped by category (POL, FILE, VAL, RUN, CLS, RATE, AUTH) with ERR000
// as the fallback.
package core
