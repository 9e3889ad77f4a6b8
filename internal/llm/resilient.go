package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// ResilientProvider wraps an LLM provider with resilience patterns from fortify
type ResilientProvider struct {
	provider       Provider
	circuitBreaker circuitbreaker.CircuitBreaker[*Response]
	retrier        retry.Retry[*Response]
	bulkhead       bulkhead.Bulkhead[*Response]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
	name           string
}

// ResilientConfig holds configuration for resilient provider wrapper
type ResilientConfig struct {
	EnableCircuitBreaker bool
	EnableRetry          bool
	EnableBulkhead       bool
	EnableRateLimit      bool

	// MaxRetries is the number of retries after the first attempt (default: 1)
	MaxRetries int

	// RetryDelay is the initial backoff (default: 1s)
	RetryDelay time.Duration

	// MaxConcurrent for bulkhead (default: 5)
	MaxConcurrent int

	// RatePerSecond for rate limiting (default: 2)
	RatePerSecond int

	// Logger for resilience events
	Logger *slog.Logger
}

// DefaultResilientConfig returns the defaults used for judge calls: one
// retry on transient failures
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableRetry:          true,
		EnableBulkhead:       true,
		EnableRateLimit:      true,
		MaxRetries:           1,
		RetryDelay:           time.Second,
		MaxConcurrent:        5,
		RatePerSecond:        2,
	}
}

// NewResilientProvider wraps a provider with resilience patterns using fortify
func NewResilientProvider(provider Provider, cfg ResilientConfig) *ResilientProvider {
	rp := &ResilientProvider{
		provider: provider,
		logger:   cfg.Logger,
		name:     provider.Name(),
	}

	if cfg.EnableCircuitBreaker {
		rp.circuitBreaker = circuitbreaker.New[*Response](circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				if rp.logger != nil {
					rp.logger.Warn("circuit breaker state change",
						"provider", provider.Name(),
						"from", from.String(),
						"to", to.String())
				}
			},
		})
	}

	if cfg.EnableRetry {
		retries := cfg.MaxRetries
		if retries < 0 {
			retries = 0
		}
		delay := cfg.RetryDelay
		if delay <= 0 {
			delay = time.Second
		}
		rp.retrier = retry.New[*Response](retry.Config{
			MaxAttempts:   retries + 1,
			InitialDelay:  delay,
			MaxDelay:      10 * delay,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable: func(err error) bool {
				retryable := IsRetryable(err)
				if retryable && rp.logger != nil {
					rp.logger.Warn("retrying provider call", "provider", rp.name, "error", err)
				}
				return retryable
			},
		})
	}

	if cfg.EnableBulkhead {
		maxConcurrent := cfg.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = 5
		}
		rp.bulkhead = bulkhead.New[*Response](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxConcurrent * 2,
			QueueTimeout:  30 * time.Second,
		})
	}

	if cfg.EnableRateLimit {
		rate := cfg.RatePerSecond
		if rate <= 0 {
			rate = 2
		}
		rp.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 3,
			Interval: time.Second,
		})
	}

	return rp
}

func (p *ResilientProvider) Name() string {
	return p.provider.Name()
}

func (p *ResilientProvider) SupportsSchema() bool {
	return p.provider.SupportsSchema()
}

// Unwrap returns the wrapped provider
func (p *ResilientProvider) Unwrap() Provider {
	return p.provider
}

func (p *ResilientProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if p.rateLimit != nil {
		if !p.rateLimit.Allow(ctx, p.name) {
			return nil, fmt.Errorf("%w for provider %s", ErrRateLimited, p.name)
		}
	}

	operation := func(ctx context.Context) (*Response, error) {
		return p.provider.Generate(ctx, req)
	}

	if p.bulkhead != nil {
		operation = func(ctx context.Context) (*Response, error) {
			return p.bulkhead.Execute(ctx, func(ctx context.Context) (*Response, error) {
				return p.provider.Generate(ctx, req)
			})
		}
	}

	if p.circuitBreaker != nil && p.retrier != nil {
		return p.circuitBreaker.Execute(ctx, func(ctx context.Context) (*Response, error) {
			return p.retrier.Do(ctx, operation)
		})
	}

	if p.circuitBreaker != nil {
		return p.circuitBreaker.Execute(ctx, operation)
	}

	if p.retrier != nil {
		return p.retrier.Do(ctx, operation)
	}

	return operation(ctx)
}

// Close releases resources held by the resilient provider and the
// provider it wraps
func (p *ResilientProvider) Close() error {
	if c, ok := p.provider.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			return err
		}
	}
	if p.rateLimit != nil {
		return p.rateLimit.Close()
	}
	return nil
}
