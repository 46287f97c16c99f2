// Package engine implements the email hygiene and deduplication pipeline.
//
// Each address found in a spreadsheet becomes an Entry and flows through
// the stages in a fixed order:
//
//  1. Normalize      - cosmetic repair of the raw string
//  2. ValidateSyntax - structural checks on the normalized string
//  3. DomainAnalyzer - IDNA round-trip, TLD plausibility, homoglyph detection
//  4. TypoCorrector  - table and nearest-match domain repair suggestions
//  5. RiskClassifier - role accounts and disposable domains
//  6. Router         - fixed-precedence decision: accept, fix, remove, review
//  7. Canonicalizer  - provider-aware grouping key
//  8. Detect         - exact duplicate groups and near-duplicate pairs
//
// Stages 1-6 are per entry and safe to run from many goroutines as long as
// each Entry is owned by one goroutine at a time. Stages 7-8 need the whole
// run and are driven by Engine.Finalize once every entry is routed.
//
// Nothing here performs I/O. Policy lists arrive through policy.Policy and
// external classifier verdicts arrive as External values, so the same inputs
// always produce the same decisions.
package engine
