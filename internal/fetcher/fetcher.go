// Package fetcher wraps feed fetches with per-source circuit breakers,
// timeouts and retries so that one failing source never degrades the rest.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
	"NewsRelay/internal/retry"
)

// Config holds the fetch tuning knobs.
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 25 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
}

// Fetcher implements ports.SourceFetcher.
type Fetcher struct {
	transport  ports.FeedTransport
	normalizer ports.FeedNormalizer
	breakers   *Breakers
	policy     retry.Policy
	timeout    time.Duration
	logger     *slog.Logger
}

var _ ports.SourceFetcher = (*Fetcher)(nil)

// New wires transport, normalizer and a shared breaker registry.
func New(transport ports.FeedTransport, normalizer ports.FeedNormalizer, breakers *Breakers, cfg Config, logger *slog.Logger) *Fetcher {
	cfg.defaults()
	if breakers == nil {
		breakers = NewBreakers()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		transport:  transport,
		normalizer: normalizer,
		breakers:   breakers,
		policy: retry.Policy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
			Retryable:  domain.IsTransientFetch,
			Logger:     logger,
		},
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// WithPolicy replaces the retry policy; the transient-error predicate is kept.
func (f *Fetcher) WithPolicy(p retry.Policy) *Fetcher {
	p.Retryable = domain.IsTransientFetch
	f.policy = p
	return f
}

// Fetch downloads and normalizes one source. An open breaker short-circuits
// with *domain.BreakerOpenError without touching the network. A panic in the
// transport or normalizer counts as a permanent failure for the breaker.
func (f *Fetcher) Fetch(ctx context.Context, src domain.Source) (items []domain.CandidateItem, err error) {
	if !f.breakers.Allow(src.Code) {
		return nil, &domain.BreakerOpenError{Source: src.Code}
	}
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = &domain.FetchError{Source: src.Code, Err: fmt.Errorf("panic: %v", r)}
			f.breakers.RecordFailure(src.Code, err)
			f.logger.Error("fetch panicked", "source", src.Code, "panic", r)
		}
	}()

	var raw []byte
	attempts, err := f.policy.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		body, err := f.transport.Get(callCtx, src.FeedURL)
		if err != nil {
			return tagSource(err, src.Code)
		}
		raw = body
		return nil
	})
	if err != nil {
		f.breakers.RecordFailure(src.Code, err)
		f.logger.Warn("fetch failed", "source", src.Code, "attempts", attempts, "error", err)
		return nil, err
	}

	items, err = f.normalizer.Normalize(raw, src)
	if err != nil && len(items) == 0 {
		perr := &domain.FetchError{Source: src.Code, Err: fmt.Errorf("normalize: %w", err)}
		f.breakers.RecordFailure(src.Code, perr)
		f.logger.Warn("feed unreadable", "source", src.Code, "error", err)
		return nil, perr
	}
	if err != nil {
		f.logger.Info("feed partially parsed", "source", src.Code, "items", len(items), "error", err)
	}

	f.breakers.RecordSuccess(src.Code)
	f.logger.Debug("fetched source", "source", src.Code, "items", len(items), "attempts", attempts)
	return items, nil
}

// Health returns the breaker snapshot for every source that has failed at least once.
func (f *Fetcher) Health() []domain.SourceHealth {
	return f.breakers.Snapshot()
}

// Breakers exposes the shared registry.
func (f *Fetcher) Breakers() *Breakers {
	return f.breakers
}

func tagSource(err error, code string) error {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		if fe.Source == "" {
			fe.Source = code
		}
		return err
	}
	// Anything the transport did not classify is treated as transient.
	return &domain.FetchError{Source: code, Transient: true, Err: err}
}
