package engine

// router.go turns features into a final disposition.
//
// Deterministic rules are evaluated in a fixed precedence order, each one an
// independent rule that either produces a Decision or passes. The first rule
// that produces a Decision wins, so the outcome does not depend on the order
// in which features were computed. Rules marked final (structural, domain,
// disposable and role removals) can never be changed by the external
// classifier. The classifier verdict is merged afterwards and may only move
// an entry toward caution: lower confidence, accept to review, or accept/fix
// to remove when it is confident enough.

import (
	"fmt"
	"math"
)

// Confidence attached to deterministic outcomes.
const (
	// RuleConfidence backs removals by hard policy rules.
	RuleConfidence = 1.0
	// AcceptConfidence backs an address that passed every check.
	AcceptConfidence = 0.95
	// UnrecognizedTLDConfidence backs the review of an unknown TLD.
	UnrecognizedTLDConfidence = 0.50
)

// ClassifierUnavailableTag marks decisions made without a classifier that
// was supposed to be consulted.
const ClassifierUnavailableTag = "classifier_unavailable"

// RouterOptions configure routing policy.
type RouterOptions struct {
	Threshold           float64
	ExcludeRoleAccounts bool
}

// Decision is the router output for one entry.
type Decision struct {
	Action     Action
	Confidence float64
	Reason     string
	// Cleaned is the value the entry should carry: the normalized string,
	// or the repaired one when Action is fix.
	Cleaned string
	// Rule names the deterministic rule that produced the decision.
	Rule string
}

// RouteInput is everything the router reads.
type RouteInput struct {
	Cleaned  string
	Features Features
}

type rule struct {
	name  string
	final bool
	apply func(in RouteInput, opts RouterOptions) (Decision, bool)
}

// rules is the deterministic precedence, highest priority first.
var rules = []rule{
	{name: "syntax", final: true, apply: syntaxRule},
	{name: "domain", final: true, apply: domainRule},
	{name: "disposable", final: true, apply: disposableRule},
	{name: "role", final: true, apply: roleRule},
	{name: "typo", apply: typoRule},
	{name: "tld", apply: tldRule},
	{name: "accept", apply: acceptRule},
}

func syntaxRule(in RouteInput, _ RouterOptions) (Decision, bool) {
	if in.Features.SyntaxValid {
		return Decision{}, false
	}
	return remove(in, in.Features.SyntaxReason), true
}

func domainRule(in RouteInput, _ RouterOptions) (Decision, bool) {
	f := in.Features
	switch {
	case !f.DomainValid:
		return remove(in, f.DomainReason), true
	case f.IsConfusable:
		return remove(in, fmt.Sprintf("confusable domain imitating %s", f.ConfusableWith)), true
	}
	return Decision{}, false
}

func disposableRule(in RouteInput, _ RouterOptions) (Decision, bool) {
	if !in.Features.IsDisposable {
		return Decision{}, false
	}
	return remove(in, "disposable domain"), true
}

func roleRule(in RouteInput, opts RouterOptions) (Decision, bool) {
	if !in.Features.IsRoleAccount || !opts.ExcludeRoleAccounts {
		return Decision{}, false
	}
	return remove(in, "role account policy"), true
}

func typoRule(in RouteInput, opts RouterOptions) (Decision, bool) {
	f := in.Features
	if f.TypoSuggestion == "" {
		return Decision{}, false
	}
	if f.TypoConfidence >= opts.Threshold {
		return Decision{
			Action:     ActionFix,
			Confidence: f.TypoConfidence,
			Reason:     fmt.Sprintf("typo fix (%s): %s -> %s", f.TypoSource, in.Cleaned, f.TypoSuggestion),
			Cleaned:    f.TypoSuggestion,
		}, true
	}
	return Decision{
		Action:     ActionReview,
		Confidence: f.TypoConfidence,
		Reason:     fmt.Sprintf("possible typo (%s): did you mean %s", f.TypoSource, f.TypoSuggestion),
		Cleaned:    in.Cleaned,
	}, true
}

func tldRule(in RouteInput, _ RouterOptions) (Decision, bool) {
	if in.Features.TLDRecognized {
		return Decision{}, false
	}
	return Decision{
		Action:     ActionReview,
		Confidence: UnrecognizedTLDConfidence,
		Reason:     fmt.Sprintf("unrecognized top-level domain .%s", in.Features.TLD),
		Cleaned:    in.Cleaned,
	}, true
}

func acceptRule(in RouteInput, _ RouterOptions) (Decision, bool) {
	return Decision{
		Action:     ActionAccept,
		Confidence: AcceptConfidence,
		Reason:     "passed all checks",
		Cleaned:    in.Cleaned,
	}, true
}

func remove(in RouteInput, reason string) Decision {
	return Decision{Action: ActionRemove, Confidence: RuleConfidence, Reason: reason, Cleaned: in.Cleaned}
}

// Router applies the precedence rules and merges classifier verdicts.
type Router struct {
	opts RouterOptions
}

// NewRouter creates a router.
func NewRouter(opts RouterOptions) *Router {
	return &Router{opts: opts}
}

// Deterministic evaluates the rule table alone. The bool reports whether the
// decision came from a rule the classifier may not change.
func (r *Router) Deterministic(in RouteInput) (Decision, bool) {
	for _, rl := range rules {
		if d, ok := rl.apply(in, r.opts); ok {
			d.Rule = rl.name
			return d, rl.final
		}
	}
	// acceptRule always applies; this is unreachable.
	return Decision{}, false
}

// Route produces the final decision. It is a pure function of its inputs.
func (r *Router) Route(in RouteInput, ext External) Decision {
	d, final := r.Deterministic(in)
	if final {
		return d
	}

	switch ext.Status {
	case ExternalUnavailable:
		d.Reason += "; " + ClassifierUnavailableTag
		return d
	case ExternalPresent:
		return r.merge(d, in, ext.Verdict)
	default:
		return d
	}
}

func (r *Router) merge(d Decision, in RouteInput, v Verdict) Decision {
	if v.Disposition == d.Action {
		return d
	}

	if v.Disposition == ActionRemove && v.Confidence >= r.opts.Threshold && d.Action.Keeps() {
		return Decision{
			Action:     ActionRemove,
			Confidence: v.Confidence,
			Reason:     "classifier: " + v.Reason,
			Cleaned:    in.Cleaned,
			Rule:       "classifier",
		}
	}

	d.Confidence = math.Min(d.Confidence, v.Confidence)
	cautious := v.Disposition == ActionReview || v.Disposition == ActionRemove
	if cautious && d.Action == ActionAccept {
		d.Action = ActionReview
		d.Reason = fmt.Sprintf("%s; classifier suggests %s: %s", d.Reason, v.Disposition, v.Reason)
		return d
	}
	d.Reason = fmt.Sprintf("%s; classifier disagrees (%s)", d.Reason, v.Disposition)
	return d
}
