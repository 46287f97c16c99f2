package engine

// validate.go checks the structure of a normalized address.
//
// The checks follow the RFC 5321/5322 shape closely enough for list hygiene
// without trying to accept every legal but unusable form (quoted local parts,
// address literals, comments). A failure carries one specific reason so the
// rejected report can say exactly what was wrong.

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Octet limits from RFC 5321 section 4.5.3.1 (path limit less the brackets).
const (
	MaxLocalLength   = 64
	MaxLabelLength   = 63
	MaxAddressLength = 254
)

// Structural failure reasons.
const (
	ReasonEmpty             = "empty address"
	ReasonControlChar       = "control character"
	ReasonMissingAt         = "missing @"
	ReasonMultipleAt        = "multiple @ characters"
	ReasonEmptyLocal        = "empty local part"
	ReasonEmptyDomain       = "empty domain part"
	ReasonAddressTooLong    = "address too long"
	ReasonLocalTooLong      = "local part too long"
	ReasonLocalDotBoundary  = "local part starts or ends with a dot"
	ReasonConsecutiveDots   = "consecutive dots"
	ReasonInvalidLocalChar  = "invalid character in local part"
	ReasonNoDomainDot       = "domain has no dot"
	ReasonDomainDotBoundary = "domain starts or ends with a dot"
	ReasonLabelTooLong      = "label too long"
	ReasonInvalidLabel      = "invalid domain label"
)

// SyntaxResult is the outcome of ValidateSyntax.
type SyntaxResult struct {
	Valid  bool
	Reason string // empty when Valid
	Local  string
	Domain string
}

func syntaxError(reason string) SyntaxResult {
	return SyntaxResult{Reason: reason}
}

// ValidateSyntax checks addr, which must already be normalized.
func ValidateSyntax(addr string) SyntaxResult {
	if addr == "" {
		return syntaxError(ReasonEmpty)
	}
	if strings.IndexFunc(addr, isControl) >= 0 {
		return syntaxError(ReasonControlChar)
	}

	switch strings.Count(addr, "@") {
	case 0:
		return syntaxError(ReasonMissingAt)
	case 1:
	default:
		return syntaxError(ReasonMultipleAt)
	}

	local, domain, _ := SplitAddress(addr)
	if local == "" {
		return syntaxError(ReasonEmptyLocal)
	}
	if domain == "" {
		return syntaxError(ReasonEmptyDomain)
	}
	if len(addr) > MaxAddressLength {
		return syntaxError(ReasonAddressTooLong)
	}
	if len(local) > MaxLocalLength {
		return syntaxError(ReasonLocalTooLong)
	}

	if reason := checkLocal(local); reason != "" {
		return syntaxError(reason)
	}
	if reason := checkDomain(domain); reason != "" {
		return syntaxError(reason)
	}

	return SyntaxResult{Valid: true, Local: local, Domain: domain}
}

func isControl(r rune) bool {
	return unicode.IsControl(r) || r == utf8.RuneError
}

func checkLocal(local string) string {
	if local[0] == '.' || local[len(local)-1] == '.' {
		return ReasonLocalDotBoundary
	}
	if strings.Contains(local, "..") {
		return ReasonConsecutiveDots
	}
	for _, r := range local {
		if !isLocalRune(r) {
			return ReasonInvalidLocalChar
		}
	}
	return ""
}

// isLocalRune accepts RFC 5322 atext plus dots, and letters or digits beyond
// ASCII for internationalized mailboxes (RFC 6531).
func isLocalRune(r rune) bool {
	if r >= utf8.RuneSelf {
		return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
	}
	switch {
	case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		return true
	}
	return strings.ContainsRune("!#$%&'*+/=?^_`{|}~-.", r)
}

func checkDomain(domain string) string {
	if !strings.Contains(domain, ".") {
		return ReasonNoDomainDot
	}
	if domain[0] == '.' || domain[len(domain)-1] == '.' {
		return ReasonDomainDotBoundary
	}
	if strings.Contains(domain, "..") {
		return ReasonConsecutiveDots
	}

	for _, label := range strings.Split(domain, ".") {
		if len(label) > MaxLabelLength {
			return ReasonLabelTooLong
		}
		if !isASCII(label) {
			// Internationalized labels are checked by the domain analyzer.
			continue
		}
		if !isLDHLabel(label) {
			return ReasonInvalidLabel
		}
	}
	return ""
}

// isLDHLabel reports whether label is letters, digits and inner hyphens.
func isLDHLabel(label string) bool {
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
