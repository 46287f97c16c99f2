package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	p, err := Default(Options{PublicSuffixFallback: true})
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	if !p.IsRecognizedTLD("com") {
		t.Error("IsRecognizedTLD(com) = false, want true")
	}
	if !p.IsRecognizedTLD("no") {
		t.Error("IsRecognizedTLD(no) = false, want true")
	}
	if fix, ok := p.TLDFix("con"); !ok || fix != "com" {
		t.Errorf("TLDFix(con) = %q, %v, want com, true", fix, ok)
	}
	if fix, ok := p.DomainFix("gmial.com"); !ok || fix != "gmail.com" {
		t.Errorf("DomainFix(gmial.com) = %q, %v, want gmail.com, true", fix, ok)
	}
	if !p.IsDisposable("mailinator.com") {
		t.Error("IsDisposable(mailinator.com) = false, want true")
	}
	if !p.IsKnownDomain("gmail.com") {
		t.Error("IsKnownDomain(gmail.com) = false, want true")
	}
	if r, ok := p.Confusable('о'); !ok || r != "o" {
		t.Errorf("Confusable(cyrillic o) = %q, %v, want o, true", r, ok)
	}
	if !p.PublicSuffixFallback() {
		t.Error("PublicSuffixFallback() = false, want true")
	}
}

func TestIsRoleLocal(t *testing.T) {
	p, err := Default(Options{})
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	tests := []struct {
		local string
		want  bool
	}{
		{"admin", true},
		{"ADMIN", true},
		{"postmaster", true},
		{"sales.team", true},
		{"no-reply-billing", true},
		{"john", false},
		{"jadmin", false},
	}
	for _, tt := range tests {
		t.Run(tt.local, func(t *testing.T) {
			if got := p.IsRoleLocal(tt.local); got != tt.want {
				t.Errorf("IsRoleLocal(%q) = %v, want %v", tt.local, got, tt.want)
			}
		})
	}
}

func TestProvider(t *testing.T) {
	p, err := Default(Options{})
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	rule, ok := p.Provider("googlemail.com")
	if !ok {
		t.Fatal("Provider(googlemail.com) not found")
	}
	if !rule.DotStrip || !rule.PlusTrim || rule.CanonicalDomain != "gmail.com" {
		t.Errorf("Provider(googlemail.com) = %+v, want dot strip, plus trim, gmail.com", rule)
	}

	rule, ok = p.Provider("hotmail.com")
	if !ok || rule.DotStrip || !rule.PlusTrim {
		t.Errorf("Provider(hotmail.com) = %+v, %v, want plus trim only", rule, ok)
	}

	if _, ok := p.Provider("example.com"); ok {
		t.Error("Provider(example.com) found, want none")
	}
}

func TestNew_EmptyLists(t *testing.T) {
	base := File{
		TLDs:              []string{"com"},
		PopularDomains:    []string{"gmail.com"},
		DisposableDomains: []string{"mailinator.com"},
		RoleLocals:        []string{"admin"},
		Providers:         []ProviderRule{{Name: "gmail", Domains: []string{"gmail.com"}}},
	}
	if _, err := New(base, Options{}); err != nil {
		t.Fatalf("New(base) error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*File)
	}{
		{"no tlds", func(f *File) { f.TLDs = nil }},
		{"no popular domains", func(f *File) { f.PopularDomains = nil }},
		{"no disposable domains", func(f *File) { f.DisposableDomains = nil }},
		{"no role locals", func(f *File) { f.RoleLocals = nil }},
		{"no providers", func(f *File) { f.Providers = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base
			tt.mutate(&f)
			_, err := New(f, Options{})
			if !errors.Is(err, ErrEmptyList) {
				t.Errorf("New() error = %v, want ErrEmptyList", err)
			}
		})
	}
}

func TestNew_InvalidContent(t *testing.T) {
	base := func() File {
		return File{
			TLDs:              []string{"com", "ne"},
			PopularDomains:    []string{"gmail.com"},
			DisposableDomains: []string{"mailinator.com"},
			RoleLocals:        []string{"admin"},
			Providers:         []ProviderRule{{Name: "gmail", Domains: []string{"gmail.com"}}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*File)
	}{
		{"tld fix rewrites real tld", func(f *File) { f.TLDFixes = map[string]string{"ne": "net"} }},
		{"multi-rune confusable", func(f *File) { f.Confusables = map[string]string{"ab": "c"} }},
		{"provider without domains", func(f *File) { f.Providers = []ProviderRule{{Name: "x"}} }},
		{"domain in two providers", func(f *File) {
			f.Providers = append(f.Providers, ProviderRule{Name: "dup", Domains: []string{"gmail.com"}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base()
			tt.mutate(&f)
			_, err := New(f, Options{})
			if !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("New() error = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path uses embedded default", func(t *testing.T) {
		p, err := Load("", Options{})
		if err != nil {
			t.Fatalf("Load(\"\") error = %v", err)
		}
		if len(p.PopularDomains()) == 0 {
			t.Error("PopularDomains() is empty")
		}
	})

	t.Run("missing file is an error", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), Options{}); err == nil {
			t.Error("Load(missing) error = nil, want error")
		}
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("tlds: [com\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path, Options{})
		if !errors.Is(err, ErrInvalidPolicy) {
			t.Errorf("Load(corrupt) error = %v, want ErrInvalidPolicy", err)
		}
	})

	t.Run("file with empty list is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.yaml")
		content := "tlds: [com]\npopular_domains: [gmail.com]\nrole_locals: [admin]\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path, Options{})
		if !errors.Is(err, ErrEmptyList) {
			t.Errorf("Load(empty list) error = %v, want ErrEmptyList", err)
		}
	})
}

func TestSummary(t *testing.T) {
	p, err := Default(Options{})
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	s := p.Summary()
	if s.PopularDomains != len(p.PopularDomains()) {
		t.Errorf("Summary().PopularDomains = %d, want %d", s.PopularDomains, len(p.PopularDomains()))
	}
	want := []string{"fastmail", "gmail", "microsoft", "proton"}
	if len(s.Providers) != len(want) {
		t.Fatalf("Summary().Providers = %v, want %v", s.Providers, want)
	}
	for i := range want {
		if s.Providers[i] != want[i] {
			t.Errorf("Summary().Providers[%d] = %q, want %q", i, s.Providers[i], want[i])
		}
	}
}
