package engine

import (
	"strings"

	"github.com/JonMunkholm/mailclean/internal/policy"
)

// Canonicalizer derives the grouping key for an address. Provider behavior
// (dot stripping, plus-tag trimming, domain aliases) comes from the policy's
// provider table; unknown domains are only lower-cased.
type Canonicalizer struct {
	policy *policy.Policy
}

// NewCanonicalizer creates a canonicalizer over p.
func NewCanonicalizer(p *policy.Policy) *Canonicalizer {
	return &Canonicalizer{policy: p}
}

// Key returns the canonical key of addr. Key is deterministic and
// idempotent: Key(Key(x)) == Key(x).
func (c *Canonicalizer) Key(addr string) string {
	addr = strings.ToLower(addr)
	local, domain, ok := SplitAddress(addr)
	if !ok {
		return addr
	}

	rule, ok := c.policy.Provider(domain)
	if !ok {
		return addr
	}

	if rule.PlusTrim {
		if i := strings.IndexByte(local, '+'); i > 0 {
			local = local[:i]
		}
	}
	if rule.DotStrip {
		if stripped := strings.ReplaceAll(local, ".", ""); stripped != "" {
			local = stripped
		}
	}
	if rule.CanonicalDomain != "" {
		domain = rule.CanonicalDomain
	}
	return local + "@" + domain
}
