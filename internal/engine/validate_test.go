package engine

import (
	"strings"
	"testing"
)

func TestValidateSyntax(t *testing.T) {
	longLabel := strings.Repeat("a", 64)
	longLocal := strings.Repeat("b", 65)
	longAddr := strings.Repeat("c", 60) + "@" + strings.Repeat(strings.Repeat("d", 60)+".", 4) + "com"

	tests := []struct {
		name       string
		addr       string
		wantValid  bool
		wantReason string
	}{
		{"simple", "john@example.com", true, ""},
		{"plus tag", "john+news@example.com", true, ""},
		{"atext symbols", "o'brien!#$%&*/=?^_`{|}~-@example.com", true, ""},
		{"unicode local", "jörg@example.de", true, ""},
		{"idn domain", "user@bücher.de", true, ""},
		{"hyphenated label", "a@my-site.example.org", true, ""},
		{"empty", "", false, ReasonEmpty},
		{"control char", "jo\x01hn@example.com", false, ReasonControlChar},
		{"missing at", "john.example.com", false, ReasonMissingAt},
		{"multiple at", "a@b@example.com", false, ReasonMultipleAt},
		{"empty local", "@example.com", false, ReasonEmptyLocal},
		{"empty domain", "john@", false, ReasonEmptyDomain},
		{"local too long", longLocal + "@example.com", false, ReasonLocalTooLong},
		{"address too long", longAddr, false, ReasonAddressTooLong},
		{"leading dot", ".john@example.com", false, ReasonLocalDotBoundary},
		{"trailing dot", "john.@example.com", false, ReasonLocalDotBoundary},
		{"local consecutive dots", "jo..hn@example.com", false, ReasonConsecutiveDots},
		{"domain consecutive dots", "john@example..com", false, ReasonConsecutiveDots},
		{"quote in local", "jo\"hn@example.com", false, ReasonInvalidLocalChar},
		{"no domain dot", "john@localhost", false, ReasonNoDomainDot},
		{"domain leading dot", "john@.example.com", false, ReasonDomainDotBoundary},
		{"label too long", "john@" + longLabel + ".com", false, ReasonLabelTooLong},
		{"label hyphen edge", "john@-example.com", false, ReasonInvalidLabel},
		{"underscore label", "john@ex_ample.com", false, ReasonInvalidLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateSyntax(tt.addr)
			if got.Valid != tt.wantValid {
				t.Errorf("ValidateSyntax(%q).Valid = %v, want %v (reason %q)", tt.addr, got.Valid, tt.wantValid, got.Reason)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("ValidateSyntax(%q).Reason = %q, want %q", tt.addr, got.Reason, tt.wantReason)
			}
		})
	}
}

func TestValidateSyntax_Parts(t *testing.T) {
	got := ValidateSyntax("John.Doe@example.com")
	if got.Local != "John.Doe" || got.Domain != "example.com" {
		t.Errorf("parts = %q, %q, want John.Doe, example.com", got.Local, got.Domain)
	}
}
