package classifier

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/mailclean/internal/engine"
)

const systemPrompt = `You validate email address plausibility for list hygiene.
Do not claim deliverability and do not use the network. Consider the flags
provided for each address (syntax, domain, role account, disposable provider,
confusable characters).

For every item return exactly one result with the same id:
- disposition: one of accept, fix, review, remove
  accept: plausible as-is
  fix: an obvious safe repair exists
  review: uncertain, a human should decide
  remove: clearly invalid or risky
- confidence: number between 0.0 and 1.0
- reason: short explanation

Respond with a single JSON object and nothing else:
{"results":[{"id":0,"disposition":"accept","confidence":0.9,"reason":"..."}]}`

type promptItem struct {
	ID int `json:"id"`
	Item
}

type llmResponse struct {
	Results []Result `json:"results"`
}

// Completer sends one system and user prompt to a language model and returns
// the raw text answer.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// LLM classifies items through a language model Completer.
type LLM struct {
	name      string
	completer Completer
}

// NewLLM wraps a completer. name is used in error messages.
func NewLLM(name string, c Completer) *LLM {
	return &LLM{name: name, completer: c}
}

// Classify sends items as one prompt and aligns the answer by id.
func (l *LLM) Classify(ctx context.Context, items []Item) ([]engine.External, error) {
	if len(items) == 0 {
		return nil, nil
	}
	prompt, err := buildPrompt(items)
	if err != nil {
		return nil, err
	}
	text, err := l.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s completion: %w", l.name, err)
	}
	return parseResponse(text, len(items))
}

// Close closes the completer when it holds resources.
func (l *LLM) Close() error {
	if c, ok := l.completer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func buildPrompt(items []Item) (string, error) {
	wrapped := make([]promptItem, len(items))
	for i, it := range items {
		wrapped[i] = promptItem{ID: i, Item: it}
	}
	body, err := json.Marshal(struct {
		Items []promptItem `json:"items"`
	}{wrapped})
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("Classify these addresses:\n\n")
	sb.Write(body)
	sb.WriteString("\n\nReturn the JSON object:")
	return sb.String(), nil
}

// parseResponse extracts the outermost JSON object from text. Models
// sometimes wrap the object in a code fence or a sentence.
func parseResponse(text string, n int) ([]engine.External, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrSchema)
	}
	var resp llmResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return alignByID(resp.Results, n)
}
