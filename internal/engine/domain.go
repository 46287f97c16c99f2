package engine

import (
	"strings"
	"unicode"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/JonMunkholm/mailclean/internal/policy"
)

// ReasonInvalidIDN marks a domain whose punycode form does not round-trip.
const ReasonInvalidIDN = "invalid internationalized domain"

// DomainResult is the outcome of DomainAnalyzer.Analyze.
type DomainResult struct {
	Valid          bool
	Reason         string
	ASCII          string // punycode form used for lookups
	Unicode        string // display form
	TLD            string // last ASCII label
	TLDRecognized  bool
	Confusable     bool
	ConfusableWith string
}

// DomainAnalyzer validates internationalized domains, judges TLD plausibility
// and detects homoglyph imitations of known domains.
type DomainAnalyzer struct {
	policy  *policy.Policy
	profile *idna.Profile
}

// NewDomainAnalyzer creates an analyzer over p.
func NewDomainAnalyzer(p *policy.Policy) *DomainAnalyzer {
	return &DomainAnalyzer{policy: p, profile: idna.Lookup}
}

// Analyze inspects a syntactically valid, lower-cased domain.
func (a *DomainAnalyzer) Analyze(domain string) DomainResult {
	res := DomainResult{Valid: true, ASCII: domain, Unicode: domain}

	if !isASCII(domain) || hasACELabel(domain) {
		ascii, uni, ok := a.roundTrip(domain)
		if !ok {
			return DomainResult{Reason: ReasonInvalidIDN, ASCII: domain, Unicode: domain}
		}
		res.ASCII, res.Unicode = ascii, uni
	}

	res.TLD = res.ASCII[strings.LastIndexByte(res.ASCII, '.')+1:]
	res.TLDRecognized = a.recognizedTLD(res.ASCII, res.TLD)

	if !isASCII(res.Unicode) {
		if target, ok := a.confusableTarget(res.Unicode); ok {
			res.Confusable = true
			res.ConfusableWith = target
		}
	}
	return res
}

// roundTrip converts domain to punycode and back and requires both
// directions to agree. Non-ASCII input must survive unchanged apart from
// NFC composition.
func (a *DomainAnalyzer) roundTrip(domain string) (ascii, uni string, ok bool) {
	ascii, err := a.profile.ToASCII(domain)
	if err != nil {
		return "", "", false
	}
	uni, err = a.profile.ToUnicode(ascii)
	if err != nil {
		return "", "", false
	}
	again, err := a.profile.ToASCII(uni)
	if err != nil || again != ascii {
		return "", "", false
	}
	if !isASCII(domain) && norm.NFC.String(domain) != uni {
		return "", "", false
	}
	return ascii, uni, true
}

func hasACELabel(domain string) bool {
	return strings.HasPrefix(domain, "xn--") || strings.Contains(domain, ".xn--")
}

// recognizedTLD checks the configured list first, then ICANN suffixes when
// the policy allows it.
func (a *DomainAnalyzer) recognizedTLD(ascii, tld string) bool {
	if a.policy.IsRecognizedTLD(tld) {
		return true
	}
	if !a.policy.PublicSuffixFallback() {
		return false
	}
	suffix, icann := publicsuffix.PublicSuffix(ascii)
	return icann && (suffix == tld || strings.HasSuffix(suffix, "."+tld))
}

// confusableTarget maps domain to its skeleton and reports the known domain
// it imitates. A domain equal to its own skeleton imitates nothing.
func (a *DomainAnalyzer) confusableTarget(domain string) (string, bool) {
	skel := a.Skeleton(domain)
	if skel == domain || !isASCII(skel) {
		return "", false
	}
	if a.policy.IsKnownDomain(skel) {
		return skel, true
	}
	return "", false
}

// Skeleton strips combining marks and replaces homoglyphs with the ASCII
// letters they imitate.
func (a *DomainAnalyzer) Skeleton(s string) string {
	// Chains carry buffers, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if repl, ok := a.policy.Confusable(r); ok {
			b.WriteString(repl)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
