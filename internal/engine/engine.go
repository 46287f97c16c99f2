package engine

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/mailclean/internal/policy"
)

// Defaults and bounds for Options.
const (
	DefaultConfidenceThreshold    = 0.85
	MinConfidenceThreshold        = 0.50
	MaxConfidenceThreshold        = 0.99
	DefaultNearDuplicateThreshold = 2
)

// ErrNilPolicy is returned by New without a policy.
var ErrNilPolicy = errors.New("engine requires a policy")

// Options control routing and duplicate detection.
type Options struct {
	ConfidenceThreshold    float64
	ExcludeRoleAccounts    bool
	NearDuplicateThreshold int
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		ConfidenceThreshold:    DefaultConfidenceThreshold,
		ExcludeRoleAccounts:    true,
		NearDuplicateThreshold: DefaultNearDuplicateThreshold,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.ConfidenceThreshold < MinConfidenceThreshold || o.ConfidenceThreshold > MaxConfidenceThreshold {
		return fmt.Errorf("confidence threshold %.2f outside [%.2f, %.2f]",
			o.ConfidenceThreshold, MinConfidenceThreshold, MaxConfidenceThreshold)
	}
	if o.NearDuplicateThreshold < 1 || o.NearDuplicateThreshold > MaxNearDuplicateThreshold {
		return fmt.Errorf("near-duplicate threshold %d outside [1, %d]",
			o.NearDuplicateThreshold, MaxNearDuplicateThreshold)
	}
	return nil
}

// Engine wires the stages over one immutable policy. An Engine is safe for
// concurrent use; individual entries are not.
type Engine struct {
	policy *policy.Policy
	opts   Options

	domains *DomainAnalyzer
	typos   *TypoCorrector
	risk    *RiskClassifier
	router  *Router
	canon   *Canonicalizer
}

// New builds an engine.
func New(p *policy.Policy, opts Options) (*Engine, error) {
	if p == nil {
		return nil, ErrNilPolicy
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		policy:  p,
		opts:    opts,
		domains: NewDomainAnalyzer(p),
		typos:   NewTypoCorrector(p),
		risk:    NewRiskClassifier(p),
		router:  NewRouter(RouterOptions{Threshold: opts.ConfidenceThreshold, ExcludeRoleAccounts: opts.ExcludeRoleAccounts}),
		canon:   NewCanonicalizer(p),
	}, nil
}

// Options returns the engine options.
func (eng *Engine) Options() Options { return eng.opts }

// Policy returns the engine policy.
func (eng *Engine) Policy() *policy.Policy { return eng.policy }

// Analyze runs stages 1-5 on e, setting Cleaned and Features. It does not
// route.
func (eng *Engine) Analyze(e *Entry) {
	e.Cleaned = Normalize(e.Raw)
	e.Features = eng.features(e.Cleaned)
}

func (eng *Engine) features(addr string) Features {
	var f Features

	syn := ValidateSyntax(addr)
	if !syn.Valid {
		if syn.Reason == ReasonConsecutiveDots {
			if fixed, ok := CollapseLocalDots(addr); ok {
				return eng.collapsedFeatures(fixed)
			}
		}
		f.SyntaxReason = syn.Reason
		return f
	}
	f.SyntaxValid = true

	dom := eng.domains.Analyze(syn.Domain)
	f.ASCIIDomain = dom.ASCII
	f.TLD = dom.TLD
	f.TLDRecognized = dom.TLDRecognized
	f.IsConfusable = dom.Confusable
	f.ConfusableWith = dom.ConfusableWith
	if !dom.Valid {
		f.DomainReason = dom.Reason
		return f
	}
	f.DomainValid = true

	if !dom.Confusable {
		if s, ok := eng.typos.Suggest(dom); ok {
			f.TypoSuggestion = syn.Local + "@" + s.Domain
			f.TypoConfidence = s.Confidence
			f.TypoSource = s.Source
		}
	}

	risk := eng.risk.Classify(syn.Local, dom.ASCII)
	f.IsRoleAccount = risk.RoleAccount
	f.IsDisposable = risk.Disposable
	f.IsFreeMail = risk.FreeMail
	f.IsTestAddress = risk.TestAddress
	return f
}

// collapsedFeatures analyzes the dot-collapsed form of an address and offers
// the collapse as its repair. A domain fix found on the collapsed form is
// combined with it at the lower of the two confidences.
func (eng *Engine) collapsedFeatures(fixed string) Features {
	f := eng.features(fixed)
	if !f.SyntaxValid {
		return f
	}
	if f.TypoSuggestion == "" {
		f.TypoSuggestion = fixed
		f.TypoConfidence = LocalCollapseConfidence
		f.TypoSource = SourceLocalDots
		return f
	}
	f.TypoConfidence = min(f.TypoConfidence, LocalCollapseConfidence)
	f.TypoSource = SourceLocalDots + ", " + f.TypoSource
	return f
}

// NeedsClassifier reports whether an analyzed entry may be influenced by an
// external verdict. Entries already removed by a final rule are not.
func (eng *Engine) NeedsClassifier(e *Entry) bool {
	_, final := eng.router.Deterministic(RouteInput{Cleaned: e.Cleaned, Features: e.Features})
	return !final
}

// Route runs stage 6 and sets the decision fields exactly once.
func (eng *Engine) Route(e *Entry, ext External) error {
	if e.Routed() {
		return fmt.Errorf("%w: %s", ErrAlreadyRouted, e.Position)
	}
	d := eng.router.Route(RouteInput{Cleaned: e.Cleaned, Features: e.Features}, ext)
	e.External = ext
	e.Action = d.Action
	e.Confidence = d.Confidence
	e.Reason = d.Reason
	e.Cleaned = d.Cleaned
	return nil
}

// Process analyzes and routes e without a classifier.
func (eng *Engine) Process(e *Entry) error {
	eng.Analyze(e)
	return eng.Route(e, External{})
}

// Canonicalize returns the canonical key of addr.
func (eng *Engine) Canonicalize(addr string) string {
	return eng.canon.Key(addr)
}

// Finalize runs stages 7-8 over a whole run: it assigns canonical keys to
// accepted and fixed entries and groups them. Call it once, after every entry
// that will be routed has been.
func (eng *Engine) Finalize(entries []*Entry) DedupeResult {
	for _, e := range entries {
		if e.Action.Keeps() {
			e.CanonicalKey = eng.canon.Key(e.Cleaned)
		} else {
			e.CanonicalKey = ""
		}
	}
	return Detect(entries, eng.opts.NearDuplicateThreshold)
}
