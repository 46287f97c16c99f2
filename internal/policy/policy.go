// Package policy holds the immutable lists that drive email hygiene decisions.
//
// A Policy is built once at startup, from the embedded default YAML or an
// operator-supplied file, and is then shared read-only by every worker. No
// method mutates it after New returns, so it is safe for concurrent use.
package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicy []byte

var (
	// ErrEmptyList is returned when a required list is missing or empty.
	ErrEmptyList = errors.New("policy list is empty")

	// ErrInvalidPolicy is returned for structurally invalid policy content.
	ErrInvalidPolicy = errors.New("invalid policy")
)

// ProviderRule describes how a mail provider treats the local part.
// Adding a provider is adding a row; the canonicalizer has no per-provider code.
type ProviderRule struct {
	Name            string   `yaml:"name" json:"name"`
	Domains         []string `yaml:"domains" json:"domains"`
	DotStrip        bool     `yaml:"dot_strip" json:"dot_strip"`
	PlusTrim        bool     `yaml:"plus_trim" json:"plus_trim"`
	CanonicalDomain string   `yaml:"canonical_domain" json:"canonical_domain,omitempty"`
}

// File is the on-disk shape of a policy.
type File struct {
	TLDs              []string          `yaml:"tlds"`
	TLDFixes          map[string]string `yaml:"tld_fixes"`
	DomainFixes       map[string]string `yaml:"domain_fixes"`
	PopularDomains    []string          `yaml:"popular_domains"`
	DisposableDomains []string          `yaml:"disposable_domains"`
	RoleLocals        []string          `yaml:"role_locals"`
	RolePrefixes      []string          `yaml:"role_prefixes"`
	FreeMailDomains   []string          `yaml:"free_mail_domains"`
	TestLocalPrefixes []string          `yaml:"test_local_prefixes"`
	Providers         []ProviderRule    `yaml:"providers"`
	Confusables       map[string]string `yaml:"confusables"`
}

// Options tune how a policy is interpreted without changing its lists.
type Options struct {
	// PublicSuffixFallback treats any ICANN public suffix as a recognized TLD
	// in addition to the configured list.
	PublicSuffixFallback bool
}

// Policy is the loaded, immutable form of a File.
type Policy struct {
	tlds         set
	tldFixes     map[string]string
	domainFixes  map[string]string
	popular      []string
	popularSet   set
	known        set
	disposable   set
	roleLocals   set
	rolePrefixes []string
	freeMail     set
	testPrefixes []string
	providers    map[string]ProviderRule
	confusables  map[rune]string

	publicSuffixFallback bool
}

type set map[string]struct{}

func newSet(items []string) set {
	s := make(set, len(items))
	for _, it := range items {
		if it = clean(it); it != "" {
			s[it] = struct{}{}
		}
	}
	return s
}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Default returns the embedded policy.
func Default(opts Options) (*Policy, error) {
	return Parse(defaultPolicy, opts)
}

// Load reads a policy from path, or the embedded default when path is empty.
// Any error here is fatal to the caller: the engine must never run on an
// empty policy.
func Load(path string, opts Options) (*Policy, error) {
	if path == "" {
		return Default(opts)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}
	p, err := Parse(data, opts)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes YAML policy content.
func Parse(data []byte, opts Options) (*Policy, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return New(f, opts)
}

// New validates f and builds a Policy from it.
func New(f File, opts Options) (*Policy, error) {
	required := []struct {
		name  string
		count int
	}{
		{"tlds", len(f.TLDs)},
		{"popular_domains", len(f.PopularDomains)},
		{"disposable_domains", len(f.DisposableDomains)},
		{"role_locals", len(f.RoleLocals)},
		{"providers", len(f.Providers)},
	}
	for _, r := range required {
		if r.count == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyList, r.name)
		}
	}

	p := &Policy{
		tlds:                 newSet(f.TLDs),
		tldFixes:             make(map[string]string, len(f.TLDFixes)),
		domainFixes:          make(map[string]string, len(f.DomainFixes)),
		popularSet:           make(set, len(f.PopularDomains)),
		disposable:           newSet(f.DisposableDomains),
		roleLocals:           newSet(f.RoleLocals),
		freeMail:             newSet(f.FreeMailDomains),
		providers:            make(map[string]ProviderRule),
		confusables:          make(map[rune]string, len(f.Confusables)),
		publicSuffixFallback: opts.PublicSuffixFallback,
	}

	for _, d := range f.PopularDomains {
		d = clean(d)
		if d == "" || p.popularSet.has(d) {
			continue
		}
		p.popular = append(p.popular, d)
		p.popularSet[d] = struct{}{}
	}

	for bad, good := range f.TLDFixes {
		bad, good = strings.TrimPrefix(clean(bad), "."), strings.TrimPrefix(clean(good), ".")
		if p.tlds.has(bad) {
			return nil, fmt.Errorf("%w: tld fix %q rewrites a recognized tld", ErrInvalidPolicy, bad)
		}
		p.tldFixes[bad] = good
	}

	p.known = make(set, len(p.popular)+len(f.DomainFixes))
	for d := range p.popularSet {
		p.known[d] = struct{}{}
	}
	for bad, good := range f.DomainFixes {
		bad, good = clean(bad), clean(good)
		if bad == good {
			continue
		}
		p.domainFixes[bad] = good
		p.known[good] = struct{}{}
	}

	for _, pr := range f.RolePrefixes {
		if pr = clean(pr); pr != "" {
			p.rolePrefixes = append(p.rolePrefixes, pr)
		}
	}
	for _, pr := range f.TestLocalPrefixes {
		if pr = clean(pr); pr != "" {
			p.testPrefixes = append(p.testPrefixes, pr)
		}
	}

	for i, rule := range f.Providers {
		if len(rule.Domains) == 0 {
			return nil, fmt.Errorf("%w: provider %d (%s) has no domains", ErrInvalidPolicy, i, rule.Name)
		}
		rule.CanonicalDomain = clean(rule.CanonicalDomain)
		for _, d := range rule.Domains {
			d = clean(d)
			if _, dup := p.providers[d]; dup {
				return nil, fmt.Errorf("%w: domain %q listed by more than one provider", ErrInvalidPolicy, d)
			}
			p.providers[d] = rule
		}
	}

	for from, to := range f.Confusables {
		if utf8.RuneCountInString(from) != 1 {
			return nil, fmt.Errorf("%w: confusable key %q must be a single character", ErrInvalidPolicy, from)
		}
		r, _ := utf8.DecodeRuneInString(from)
		p.confusables[r] = strings.ToLower(to)
	}

	return p, nil
}

// IsRecognizedTLD reports whether tld is in the configured list.
func (p *Policy) IsRecognizedTLD(tld string) bool { return p.tlds.has(tld) }

// PublicSuffixFallback reports whether ICANN suffixes count as recognized.
func (p *Policy) PublicSuffixFallback() bool { return p.publicSuffixFallback }

// TLDFix returns the correction for a misspelled top-level label.
func (p *Policy) TLDFix(tld string) (string, bool) {
	fix, ok := p.tldFixes[tld]
	return fix, ok
}

// DomainFix returns the correction for a misspelled domain.
func (p *Policy) DomainFix(domain string) (string, bool) {
	fix, ok := p.domainFixes[domain]
	return fix, ok
}

// PopularDomains returns the popular domains in configured order.
// The slice is shared; callers must not modify it.
func (p *Policy) PopularDomains() []string { return p.popular }

// IsKnownDomain reports whether domain is popular or the target of a fix.
func (p *Policy) IsKnownDomain(domain string) bool { return p.known.has(domain) }

// IsDisposable reports an exact match against the disposable list.
func (p *Policy) IsDisposable(domain string) bool { return p.disposable.has(domain) }

// IsRoleLocal matches local case-insensitively against role names (exact)
// and role prefixes.
func (p *Policy) IsRoleLocal(local string) bool {
	local = strings.ToLower(local)
	if p.roleLocals.has(local) {
		return true
	}
	for _, pr := range p.rolePrefixes {
		if strings.HasPrefix(local, pr) {
			return true
		}
	}
	return false
}

// IsFreeMail reports whether domain belongs to a free mail provider.
func (p *Policy) IsFreeMail(domain string) bool { return p.freeMail.has(domain) }

// IsTestLocal reports whether local looks like a placeholder address.
func (p *Policy) IsTestLocal(local string) bool {
	local = strings.ToLower(local)
	for _, pr := range p.testPrefixes {
		if strings.HasPrefix(local, pr) {
			return true
		}
	}
	return false
}

// Provider returns the canonicalization rule for domain, if any.
func (p *Policy) Provider(domain string) (ProviderRule, bool) {
	rule, ok := p.providers[domain]
	return rule, ok
}

// Confusable returns the ASCII text a homoglyph imitates.
func (p *Policy) Confusable(r rune) (string, bool) {
	s, ok := p.confusables[r]
	return s, ok
}

// Summary reports list sizes for diagnostics.
type Summary struct {
	TLDs                 int      `json:"tlds"`
	TLDFixes             int      `json:"tld_fixes"`
	DomainFixes          int      `json:"domain_fixes"`
	PopularDomains       int      `json:"popular_domains"`
	DisposableDomains    int      `json:"disposable_domains"`
	RoleLocals           int      `json:"role_locals"`
	RolePrefixes         int      `json:"role_prefixes"`
	FreeMailDomains      int      `json:"free_mail_domains"`
	Confusables          int      `json:"confusables"`
	Providers            []string `json:"providers"`
	PublicSuffixFallback bool     `json:"public_suffix_fallback"`
}

// Summary returns a snapshot of list sizes.
func (p *Policy) Summary() Summary {
	names := make(map[string]struct{})
	for _, rule := range p.providers {
		names[rule.Name] = struct{}{}
	}
	providers := make([]string, 0, len(names))
	for n := range names {
		providers = append(providers, n)
	}
	sort.Strings(providers)

	return Summary{
		TLDs:                 len(p.tlds),
		TLDFixes:             len(p.tldFixes),
		DomainFixes:          len(p.domainFixes),
		PopularDomains:       len(p.popular),
		DisposableDomains:    len(p.disposable),
		RoleLocals:           len(p.roleLocals),
		RolePrefixes:         len(p.rolePrefixes),
		FreeMailDomains:      len(p.freeMail),
		Confusables:          len(p.confusables),
		Providers:            providers,
		PublicSuffixFallback: p.publicSuffixFallback,
	}
}
