package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures exponential retry of an operation.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors func(error) bool // Determines if an error should trigger retry
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: func(_ error) bool {
			// By default, retry all errors
			return true
		},
	}
}

// BackOff builds the backoff policy described by the config, bound to ctx.
func (c *RetryConfig) BackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialDelay
	b.MaxInterval = c.MaxDelay
	if c.BackoffFactor > 0 {
		b.Multiplier = c.BackoffFactor
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = b
	if c.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(c.MaxAttempts-1))
	}
	return backoff.WithContext(policy, ctx)
}

// Retry runs op until it succeeds, returns a non-retryable error, the attempts
// are exhausted or ctx is done. A nil config means DefaultRetryConfig.
func Retry[T any](ctx context.Context, config *RetryConfig, op func(ctx context.Context) (T, error)) (T, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}
	attempt := 0
	result, err := backoff.RetryWithData(func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err != nil && config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, config.BackOff(ctx))
	if err != nil && attempt > 1 {
		return result, fmt.Errorf("after %d attempts: %w", attempt, err)
	}
	return result, err
}

// WithRetry wraps a node function so that it is retried according to config.
func WithRetry[S any](config *RetryConfig, fn func(ctx context.Context, state S) (S, error)) func(ctx context.Context, state S) (S, error) {
	return func(ctx context.Context, state S) (S, error) {
		return Retry(ctx, config, func(ctx context.Context) (S, error) {
			return fn(ctx, state)
		})
	}
}
