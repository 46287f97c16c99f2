package classifier

import (
	"context"
	"errors"

	"github.com/liushuangls/go-anthropic/v2"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

const anthropicMaxTokens = 4096

// Anthropic completes prompts with the messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic completer.
func NewAnthropic(apiKey, model, baseURL string) *Anthropic {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &Anthropic{client: anthropic.NewClient(apiKey, opts...), model: model}
}

// Complete implements Completer.
func (c *Anthropic) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:  anthropic.Model(c.model),
		System: system,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
		MaxTokens: anthropicMaxTokens,
	})
	if err != nil {
		return "", err
	}
	for _, part := range resp.Content {
		if part.Text != nil {
			return *part.Text, nil
		}
	}
	return "", errors.New("no text content in response")
}
