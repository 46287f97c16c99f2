package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/JonMunkholm/mailclean/internal/classifier"
	"github.com/JonMunkholm/mailclean/internal/config"
	"github.com/JonMunkholm/mailclean/internal/engine"
	"github.com/JonMunkholm/mailclean/internal/policy"
)

// LoadPolicy reads the configured policy file, or the embedded default when
// none is set.
func LoadPolicy(cfg config.PolicyConfig) (*policy.Policy, error) {
	return policy.Load(cfg.File, policy.Options{PublicSuffixFallback: cfg.PublicSuffixFallback})
}

// EngineOptions maps the engine section of cfg.
func EngineOptions(cfg config.EngineConfig) engine.Options {
	return engine.Options{
		ConfidenceThreshold:    cfg.ConfidenceThreshold,
		ExcludeRoleAccounts:    cfg.ExcludeRoleAccounts,
		NearDuplicateThreshold: cfg.NearDuplicateThreshold,
	}
}

// NewProcessorFromConfig assembles policy, engine, classifier and processor.
// The returned close function releases classifier resources and is never
// nil.
func NewProcessorFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Processor, func() error, error) {
	noop := func() error { return nil }

	p, err := LoadPolicy(cfg.Policy)
	if err != nil {
		return nil, noop, fmt.Errorf("load policy: %w", err)
	}

	eng, err := engine.New(p, EngineOptions(cfg.Engine))
	if err != nil {
		return nil, noop, fmt.Errorf("create engine: %w", err)
	}

	cls, err := classifier.New(ctx, classifier.Config{
		Provider:      cfg.Classifier.Provider,
		Model:         cfg.Classifier.Model,
		Endpoint:      cfg.Classifier.Endpoint,
		APIKey:        cfg.Classifier.ProviderKey(),
		Timeout:       cfg.Classifier.Timeout,
		RatePerSecond: cfg.Classifier.RatePerSecond,
		MaxRetries:    cfg.Classifier.MaxRetries,
	}, logger)
	if err != nil {
		return nil, noop, fmt.Errorf("create classifier: %w", err)
	}

	closeFn := noop
	if c, ok := cls.(io.Closer); ok {
		closeFn = c.Close
	}

	proc := NewProcessor(eng, cls, ProcessorConfig{
		Workers:             cfg.Engine.WorkerConcurrency,
		BatchSize:           cfg.Engine.BatchSize,
		ClassifierBatchSize: cfg.Classifier.BatchSize,
	})
	return proc, closeFn, nil
}

// NewServiceFromConfig wraps proc in a service bounded by the upload section.
func NewServiceFromConfig(proc *Processor, cfg config.UploadConfig) *Service {
	return NewService(proc, NewRunLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime), ServiceConfig{
		RunTimeout: cfg.Timeout,
		Retention:  cfg.ResultRetention,
	})
}
