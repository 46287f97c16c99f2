package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/mailclean/internal/engine"
)

func ptr[T any](v T) *T { return &v }

func TestVerdict(t *testing.T) {
	tests := []struct {
		name       string
		in         Result
		wantStatus engine.ExternalStatus
		wantAction engine.Action
	}{
		{"accept", Result{Disposition: "accept", Confidence: ptr(0.9)}, engine.ExternalPresent, engine.ActionAccept},
		{"legacy fix_auto", Result{Disposition: "fix_auto", Confidence: ptr(0.9)}, engine.ExternalPresent, engine.ActionFix},
		{"legacy suppress", Result{Disposition: "suppress", Confidence: ptr(0.9)}, engine.ExternalPresent, engine.ActionRemove},
		{"unknown disposition", Result{Disposition: "maybe", Confidence: ptr(0.9)}, engine.ExternalUnavailable, engine.ActionNone},
		{"missing confidence", Result{Disposition: "review"}, engine.ExternalUnavailable, engine.ActionNone},
		{"confidence above one", Result{Disposition: "review", Confidence: ptr(1.5)}, engine.ExternalUnavailable, engine.ActionNone},
		{"negative confidence", Result{Disposition: "review", Confidence: ptr(-0.1)}, engine.ExternalUnavailable, engine.ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verdict(tt.in)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantAction, got.Verdict.Disposition)
		})
	}
}

func TestAlignByID(t *testing.T) {
	results := []Result{
		{ID: ptr(2), Disposition: "remove", Confidence: ptr(0.95)},
		{ID: ptr(0), Disposition: "accept", Confidence: ptr(0.8)},
		{ID: ptr(7), Disposition: "accept", Confidence: ptr(0.8)},
		{Disposition: "accept", Confidence: ptr(0.8)},
	}
	got, err := alignByID(results, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, engine.ActionAccept, got[0].Verdict.Disposition)
	assert.Equal(t, engine.ExternalUnavailable, got[1].Status)
	assert.Equal(t, engine.ActionRemove, got[2].Verdict.Disposition)

	_, err = alignByID(nil, 2)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestAlignByID_RepeatedID(t *testing.T) {
	results := []Result{
		{ID: ptr(0), Disposition: "accept", Confidence: ptr(0.8)},
		{ID: ptr(0), Disposition: "remove", Confidence: ptr(0.99)},
	}
	got, err := alignByID(results, 1)
	require.NoError(t, err)
	assert.Equal(t, engine.ExternalUnavailable, got[0].Status)
}

func TestAlignPositional(t *testing.T) {
	_, err := alignPositional([]Result{{Disposition: "accept", Confidence: ptr(1.0)}}, 2)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestItemFor(t *testing.T) {
	e := engine.NewEntry(0, engine.Position{Sheet: "Contacts", Row: 4, Column: 3, Header: "Email"}, " admin@example.com ")
	e.Cleaned = "admin@example.com"
	e.Features = engine.Features{SyntaxValid: true, DomainValid: true, IsRoleAccount: true, IsFreeMail: true, TLD: "com"}

	got := ItemFor(e)
	assert.Equal(t, Item{
		Email: "admin@example.com",
		Flags: Flags{SyntaxValid: true, DomainValid: true, IsRoleAccount: true},
	}, got)
}

type fakeCompleter struct {
	answer string
	err    error
	system string
	prompt string
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.system, f.prompt = system, prompt
	return f.answer, f.err
}

func TestLLM_Classify(t *testing.T) {
	fc := &fakeCompleter{answer: "Here you go:\n```json\n" +
		`{"results":[{"id":1,"disposition":"review","confidence":0.6,"reason":"odd"},` +
		`{"id":0,"disposition":"accept","confidence":0.9,"reason":"fine"}]}` + "\n```"}
	l := NewLLM("fake", fc)

	items := []Item{
		{Email: "jane@example.com", Flags: Flags{SyntaxValid: true, DomainValid: true}},
		{Email: "x1@example.com", Flags: Flags{SyntaxValid: true, DomainValid: true}},
	}
	got, err := l.Classify(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, engine.ActionAccept, got[0].Verdict.Disposition)
	assert.Equal(t, "odd", got[1].Verdict.Reason)
	assert.Equal(t, systemPrompt, fc.system)
	assert.Contains(t, fc.prompt, `"email":"jane@example.com"`)
	assert.Contains(t, fc.prompt, `"is_confusable":false`)
	assert.Contains(t, fc.prompt, `"id":1`)
}

func TestLLM_Classify_Errors(t *testing.T) {
	items := []Item{{Email: "a@b.com"}}

	_, err := NewLLM("fake", &fakeCompleter{answer: "I cannot help with that."}).Classify(context.Background(), items)
	assert.ErrorIs(t, err, ErrSchema)

	_, err = NewLLM("fake", &fakeCompleter{answer: `{"results": [}`}).Classify(context.Background(), items)
	assert.ErrorIs(t, err, ErrSchema)

	boom := errors.New("boom")
	_, err = NewLLM("fake", &fakeCompleter{err: boom}).Classify(context.Background(), items)
	assert.ErrorIs(t, err, boom)
	assert.True(t, strings.HasPrefix(err.Error(), "fake completion"))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, Config{Provider: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(ctx, Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = New(ctx, Config{Provider: "http"}, nil)
	assert.Error(t, err)

	_, err = New(ctx, Config{Provider: "openai"}, nil)
	assert.Error(t, err)

	_, err = New(ctx, Config{Provider: "carrier-pigeon"}, nil)
	assert.ErrorContains(t, err, "unsupported classifier provider")

	c, err = New(ctx, Config{Provider: "OpenAI", APIKey: "sk-test"}, nil)
	require.NoError(t, err)
	g, ok := c.(*Guarded)
	require.True(t, ok)
	assert.Equal(t, "openai", g.Name())

	c, err = New(ctx, Config{Provider: "anthropic", APIKey: "key"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
}
