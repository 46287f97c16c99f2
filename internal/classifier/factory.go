package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Provider names accepted by New.
const (
	ProviderNone      = "none"
	ProviderHTTP      = "http"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config selects and bounds a provider.
type Config struct {
	Provider      string
	Model         string
	Endpoint      string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	MaxRetries    int
}

// New builds the configured classifier wrapped in a Guard. It returns a nil
// Classifier and no error for the "none" provider (or an empty one): the
// router then runs on deterministic policy only.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Classifier, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	var inner Classifier
	switch provider {
	case "", ProviderNone:
		return nil, nil
	case ProviderHTTP:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("classifier provider %q requires an endpoint", provider)
		}
		inner = NewHTTP(cfg.Endpoint, cfg.APIKey, nil)
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("classifier provider %q requires an API key", provider)
		}
		inner = NewLLM(provider, NewOpenAI(cfg.APIKey, cfg.Model, cfg.Endpoint))
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("classifier provider %q requires an API key", provider)
		}
		inner = NewLLM(provider, NewAnthropic(cfg.APIKey, cfg.Model, cfg.Endpoint))
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("classifier provider %q requires an API key", provider)
		}
		g, err := NewGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		inner = NewLLM(provider, g)
	default:
		return nil, fmt.Errorf("unsupported classifier provider: %s", cfg.Provider)
	}

	return Guard(provider, inner, GuardOptions{
		Timeout:       cfg.Timeout,
		RatePerSecond: cfg.RatePerSecond,
		MaxRetries:    cfg.MaxRetries,
		Logger:        logger,
	}), nil
}
