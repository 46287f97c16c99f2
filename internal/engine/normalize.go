package engine

// normalize.go repairs cosmetic noise in raw email strings.
//
// Spreadsheet exports carry a predictable set of artifacts around otherwise
// valid addresses: padding and stray spaces, zero-width marks pasted from web
// pages, word-processor quotes, <angle brackets> from mail clients, and
// fullwidth characters from East Asian input methods. Normalize removes them
// in that order, collapses doubled dots in the domain, drops its trailing
// dots and lower-cases it. The local part keeps its case.
//
// Normalize is total (it never fails) and idempotent. Some steps expose work
// for earlier ones (fullwidth brackets only become ASCII brackets late in the
// chain), so the chain is repeated until the string stops changing.

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

// maxNormalizePasses bounds the fixed-point loop. Each pass only deletes or
// narrows runes, so inputs settle in two or three passes.
const maxNormalizePasses = 8

var zeroWidth = runes.Remove(runes.Predicate(isZeroWidth))

var smartQuotes = strings.NewReplacer(
	"\u2018", "'", "\u2019", "'", "\u201a", "'", "\u201b", "'", "\u2032", "'",
	"\u201c", `"`, "\u201d", `"`, "\u201e", `"`, "\u201f", `"`, "\u2033", `"`,
)

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
		return true
	}
	return false
}

// Normalize returns the cosmetically repaired form of raw.
// A result of "" is legal and is rejected by ValidateSyntax.
func Normalize(raw string) string {
	s := raw
	for i := 0; i < maxNormalizePasses; i++ {
		next := normalizeOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func normalizeOnce(s string) string {
	s = strings.TrimSpace(s)
	s = transformString(zeroWidth, s)
	s = smartQuotes.Replace(s)
	s = stripAngleBrackets(s)
	s = transformString(width.Narrow, s)
	s = removeSpaces(s)
	return lowerDomain(s)
}

func transformString(t transform.Transformer, s string) string {
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func stripAngleBrackets(s string) string {
	for len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func removeSpaces(s string) string {
	if strings.IndexFunc(s, unicode.IsSpace) < 0 {
		return s
	}
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), "")
}

// lowerDomain lower-cases everything after the last '@', collapses runs of
// dots there and drops trailing dots. Strings without '@' are returned
// unchanged.
func lowerDomain(s string) string {
	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return s
	}
	domain := collapseDots(strings.ToLower(s[at+1:]))
	domain = strings.TrimRight(domain, ".")
	return s[:at+1] + domain
}

// SplitAddress splits addr at its last '@'.
func SplitAddress(addr string) (local, domain string, ok bool) {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return addr, "", false
	}
	return addr[:at], addr[at+1:], true
}
