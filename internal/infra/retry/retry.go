// Package retry retries storage writes with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"reward_cycle_bot/internal/domain/rewardcycle"
)

const (
	defaultMaxAttempts  = 4
	defaultBaseDelay    = 50 * time.Millisecond
	defaultJitterFactor = 0.3
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// RetryableFunc represents a function that can be retried.
type RetryableFunc func(ctx context.Context) error

type config struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	onRetry      func(attempt int, err error)
}

// Option configures retry behavior.
type Option func(*config) error

// WithMaxAttempts sets the maximum number of attempts, the first call included.
func WithMaxAttempts(attempts int) Option {
	return func(c *config) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = attempts
		return nil
	}
}

// WithBaseDelay sets the delay before the first retry. It doubles on every further retry.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *config) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}
		c.baseDelay = delay
		return nil
	}
}

// WithJitterFactor sets the random extra delay as a fraction of the backoff delay.
func WithJitterFactor(factor float64) Option {
	return func(c *config) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}
		c.jitterFactor = factor
		return nil
	}
}

// WithOnRetry registers a callback invoked before each retry with the failed
// attempt number (1-based) and its error.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(c *config) error {
		c.onRetry = fn
		return nil
	}
}

func newConfig(options []Option) (*config, error) {
	c := &config{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}
	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithExponentialBackoff runs fn until it succeeds, fails with a permanent error,
// or maxAttempts is reached.
//
// Retry schedule (default): 0 ms, 50 ms, 100 ms, 200 ms (with 30% jitter).
func WithExponentialBackoff(ctx context.Context, fn RetryableFunc, options ...Option) error {
	c, err := newConfig(options)
	if err != nil {
		return err
	}
	return c.run(ctx, fn)
}

func (c *config) run(ctx context.Context, fn RetryableFunc) error {
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * c.jitterFactor //nolint:gosec // math/rand is fine for jitter

			if c.onRetry != nil {
				c.onRetry(attempt, lastErr)
			}

			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// isRetryable reports whether err may go away on its own. Context errors and
// domain errors are permanent.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, rewardcycle.ErrCycleNotFound), errors.Is(err, rewardcycle.ErrCyclePublished):
		return false
	}
	var integrity *rewardcycle.DataIntegrityError
	return !errors.As(err, &integrity)
}
