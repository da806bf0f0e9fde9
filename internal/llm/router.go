package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config configures a Router: a plain struct, defaulted and validated
// once at construction, never a package global.
type Config struct {
	// Providers is the ordered failover chain, e.g.
	// [cloud, local, deterministic]. The last entry should be a provider
	// that never fails; Router does not enforce this but logs a warning
	// if every provider in the chain returns an error on a call.
	Providers []Provider
	// MaxRetries is the number of retries per provider before it is
	// considered failed for the current call (default 2).
	MaxRetries int
	// BaseBackoff is the base retry delay (default 200ms).
	BaseBackoff time.Duration
	// ProviderTimeout bounds a single provider attempt (default 60s).
	ProviderTimeout time.Duration
	// GlobalConcurrency bounds total in-flight outbound calls across the
	// whole process (default 8).
	GlobalConcurrency int
	// VectorDim is the dimensionality every ReasoningVector call returns
	// (default 64).
	VectorDim int
	Logger    *slog.Logger
}

func (c *Config) validate() error {
	if len(c.Providers) == 0 {
		return errors.New("llm: router config requires at least one provider")
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 200 * time.Millisecond
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 60 * time.Second
	}
	if c.GlobalConcurrency <= 0 {
		c.GlobalConcurrency = 8
	}
	if c.VectorDim <= 0 {
		c.VectorDim = 64
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Router mediates every reasoning call with ordered failover across a
// provider chain, enforcing a process-wide concurrency ceiling and
// per-provider retry/backoff. Router is stateless: it
// memoizes nothing across calls.
type Router struct {
	cfg     Config
	limiter *limiter
}

// NewRouter constructs a Router from cfg, applying defaults.
func NewRouter(cfg Config) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Router{
		cfg:     cfg,
		limiter: newLimiter(cfg.GlobalConcurrency),
	}, nil
}

// CallOutcome describes which provider actually answered a call, used by
// callers (notably the Divergence Guard) that need to know whether the
// pipeline is running in degraded mode.
type CallOutcome struct {
	ProviderName string
	Degraded     bool // true when every earlier provider failed and the terminal (last-in-chain) provider answered
	Err          error
}

// Complete tries each configured provider in order, retrying each up to
// MaxRetries times with jittered exponential backoff, and returns the
// first successful completion. The terminal provider in a correctly
// configured chain always succeeds.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (string, CallOutcome, error) {
	r.limiter.acquire()
	defer r.limiter.release()

	var joined error
	for i, p := range r.cfg.Providers {
		out, err := r.tryProvider(ctx, p, req)
		if err == nil {
			return out, CallOutcome{ProviderName: p.Name(), Degraded: i > 0 && i == len(r.cfg.Providers)-1}, nil
		}
		r.cfg.Logger.Warn("llm provider failed, advancing failover chain",
			slog.String("provider", p.Name()), slog.Any("error", err))
		joined = errors.Join(joined, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return "", CallOutcome{Err: joined}, fmt.Errorf("%w: %v", ErrAllProvidersExhausted, joined)
}

// ReasoningVector tries each provider in order the same way Complete does,
// returning the vector from the first provider that succeeds.
func (r *Router) ReasoningVector(ctx context.Context, prompt string) ([]float64, CallOutcome, error) {
	r.limiter.acquire()
	defer r.limiter.release()

	var joined error
	for i, p := range r.cfg.Providers {
		vec, err := r.tryProviderVector(ctx, p, prompt)
		if err == nil {
			return vec, CallOutcome{ProviderName: p.Name(), Degraded: i > 0 && i == len(r.cfg.Providers)-1}, nil
		}
		r.cfg.Logger.Warn("llm provider failed computing reasoning vector",
			slog.String("provider", p.Name()), slog.Any("error", err))
		joined = errors.Join(joined, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return nil, CallOutcome{Err: joined}, fmt.Errorf("%w: %v", ErrAllProvidersExhausted, joined)
}

// tryProvider runs one provider's retry loop for Complete.
func (r *Router) tryProvider(ctx context.Context, p Provider, req CompletionRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoffDelay(r.cfg.BaseBackoff, attempt-1)); err != nil {
				return "", fmt.Errorf("%w: %v", ErrProviderFailed, err)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
		out, err := p.Complete(callCtx, req)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrProviderFailed, lastErr)
}

// tryProviderVector runs one provider's retry loop for ReasoningVector.
func (r *Router) tryProviderVector(ctx context.Context, p Provider, prompt string) ([]float64, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoffDelay(r.cfg.BaseBackoff, attempt-1)); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
		vec, err := p.ReasoningVector(callCtx, prompt)
		cancel()
		if err == nil {
			if len(vec) != r.cfg.VectorDim {
				lastErr = fmt.Errorf("provider returned vector of dimension %d, want %d", len(vec), r.cfg.VectorDim)
				continue
			}
			return vec, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrProviderFailed, lastErr)
}
