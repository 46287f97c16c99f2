package engine

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/JonMunkholm/mailclean/internal/policy"
)

// Typo confidence levels. Table entries are curated and trusted; nearest
// matches lose confidence with every edit (FuzzyConfidence / distance).
const (
	TLDTableConfidence      = 0.95
	DomainTableConfidence   = 0.90
	FuzzyConfidence         = 0.88
	LocalCollapseConfidence = 0.90

	// MaxTypoDistance is the largest edit distance a nearest match may have.
	MaxTypoDistance = 2
)

// Typo suggestion sources, reported alongside the suggestion.
const (
	SourceTLDTable    = "tld table"
	SourceDomainTable = "domain table"
	SourceNearest     = "nearest match"
	SourceLocalDots   = "local dots"
)

// TypoSuggestion is a proposed domain repair. It is advisory: the router
// decides whether to apply it.
type TypoSuggestion struct {
	Domain     string
	Confidence float64
	Source     string
}

// TypoCorrector proposes deterministic domain repairs.
type TypoCorrector struct {
	policy *policy.Policy
}

// NewTypoCorrector creates a corrector over p.
func NewTypoCorrector(p *policy.Policy) *TypoCorrector {
	return &TypoCorrector{policy: p}
}

// Suggest returns a repair for the analyzed domain, if any.
func (c *TypoCorrector) Suggest(dom DomainResult) (TypoSuggestion, bool) {
	domain := dom.ASCII

	if fix, ok := c.policy.DomainFix(domain); ok {
		return TypoSuggestion{Domain: fix, Confidence: DomainTableConfidence, Source: SourceDomainTable}, true
	}

	if fix, ok := c.tldFix(domain, dom.TLD); ok {
		// A repaired TLD can reveal a known domain misspelling: gmial.con.
		if chained, ok := c.policy.DomainFix(fix); ok {
			return TypoSuggestion{Domain: chained, Confidence: DomainTableConfidence, Source: SourceDomainTable}, true
		}
		return TypoSuggestion{Domain: fix, Confidence: TLDTableConfidence, Source: SourceTLDTable}, true
	}

	// A recognized TLD makes the domain a valid combination already; only a
	// domain that cannot be delivered as written is matched against the
	// popular list.
	if dom.TLDRecognized || c.policy.IsKnownDomain(domain) {
		return TypoSuggestion{}, false
	}
	return c.nearest(domain)
}

func (c *TypoCorrector) tldFix(domain, tld string) (string, bool) {
	fix, ok := c.policy.TLDFix(tld)
	if !ok {
		return "", false
	}
	return domain[:len(domain)-len(tld)] + fix, true
}

// nearest searches the popular domains for the closest candidate within
// MaxTypoDistance. Ties go to the earlier popular domain.
func (c *TypoCorrector) nearest(domain string) (TypoSuggestion, bool) {
	best, bestDist := "", MaxTypoDistance+1
	for _, cand := range c.policy.PopularDomains() {
		if abs(len(cand)-len(domain)) > MaxTypoDistance {
			continue
		}
		dist := levenshtein.ComputeDistance(domain, cand)
		if dist == 0 {
			return TypoSuggestion{}, false
		}
		if dist > MaxTypoDistance || dist*4 > len(cand) || dist >= bestDist {
			continue
		}
		best, bestDist = cand, dist
	}
	if best == "" {
		return TypoSuggestion{}, false
	}
	return TypoSuggestion{
		Domain:     best,
		Confidence: FuzzyConfidence / float64(bestDist),
		Source:     SourceNearest,
	}, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// CollapseLocalDots repairs an address whose local part holds runs of dots,
// as in john..doe@example.com. It reports false when there is nothing to
// collapse or the collapsed address is still structurally invalid.
func CollapseLocalDots(addr string) (string, bool) {
	local, domain, ok := SplitAddress(addr)
	if !ok || !strings.Contains(local, "..") {
		return "", false
	}
	fixed := collapseDots(local) + "@" + domain
	if !ValidateSyntax(fixed).Valid {
		return "", false
	}
	return fixed, true
}

func collapseDots(s string) string {
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}
	return s
}
