package classifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/JonMunkholm/mailclean/internal/engine"
)

// GuardOptions bound every call made through a Guarded classifier.
type GuardOptions struct {
	// Timeout applies to each attempt.
	Timeout time.Duration
	// RatePerSecond paces attempts; zero or less disables pacing.
	RatePerSecond float64
	// MaxRetries is the number of attempts after the first.
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between attempts.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Guarded wraps a Classifier with pacing, a circuit breaker, a per-attempt
// timeout and linear-backoff retries. It never returns partial results:
// either every item has a verdict or the error wraps ErrUnavailable.
type Guarded struct {
	name    string
	inner   Classifier
	opts    GuardOptions
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// Guard wraps inner.
func Guard(name string, inner Classifier, opts GuardOptions) *Guarded {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	logger := opts.Logger
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("classifier circuit breaker state changed",
				"classifier", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &Guarded{
		name:    name,
		inner:   inner,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Name returns the provider name.
func (g *Guarded) Name() string { return g.name }

// Classify implements Classifier.
func (g *Guarded) Classify(ctx context.Context, items []Item) ([]engine.External, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
			case <-time.After(g.opts.RetryDelay * time.Duration(attempt)):
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		out, err := g.attempt(ctx, items)
		if err == nil {
			return out, nil
		}
		lastErr = err
		g.opts.Logger.Debug("classifier attempt failed",
			"classifier", g.name,
			"attempt", attempt+1,
			"error", err,
		)
		if ctx.Err() != nil || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

func (g *Guarded) attempt(ctx context.Context, items []Item) ([]engine.External, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	res, err := g.breaker.Execute(func() (interface{}, error) {
		out, err := g.inner.Classify(ctx, items)
		if err != nil {
			return nil, err
		}
		if len(out) != len(items) {
			return nil, fmt.Errorf("%w: got %d verdicts for %d items", ErrSchema, len(out), len(items))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]engine.External), nil
}

// Close closes the wrapped provider when it holds resources.
func (g *Guarded) Close() error {
	if c, ok := g.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
