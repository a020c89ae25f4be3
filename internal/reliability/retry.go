package reliability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines when and how to retry operations
type RetryPolicy interface {
	// ShouldRetry reports whether another attempt follows the failed one
	// numbered attempt (zero based) and how long to wait before it.
	ShouldRetry(attempt int, err error) (bool, time.Duration)
	// MaxRetries returns the maximum number of retries after the first attempt.
	MaxRetries() int
}

// ExponentialBackoff implements exponential backoff retry policy
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	Jitter          bool
}

// NewExponentialBackoff creates a new exponential backoff policy with jitter enabled.
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		MaxAttempts:     maxAttempts,
		Jitter:          true,
	}
}

func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= e.MaxAttempts || !IsRetryable(err) {
		return false, 0
	}
	return true, e.NextDelay(attempt)
}

func (e *ExponentialBackoff) MaxRetries() int {
	return e.MaxAttempts
}

// NextDelay returns the wait before retry number attempt+1.
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempt))
	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}
	if e.Jitter {
		// ±15%
		delay += delay * 0.15 * (rand.Float64()*2 - 1)
	}
	return time.Duration(delay)
}

// FixedDelay implements fixed delay retry policy
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts int
}

func NewFixedDelay(delay time.Duration, maxAttempts int) *FixedDelay {
	return &FixedDelay{Delay: delay, MaxAttempts: maxAttempts}
}

func (f *FixedDelay) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= f.MaxAttempts || !IsRetryable(err) {
		return false, 0
	}
	return true, f.Delay
}

func (f *FixedDelay) MaxRetries() int {
	return f.MaxAttempts
}

// NoRetry runs an operation exactly once.
var NoRetry RetryPolicy = NewFixedDelay(0, 0)

// RetryOption configures Retry.
type RetryOption func(*retryConfig)

type retryConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report failed attempts.
func WithLogger(logger *slog.Logger) RetryOption {
	return func(c *retryConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Retry executes fn under policy. An error marked Permanent comes back
// wrapped in ErrNonRetryable, other non-retryable errors are returned as is,
// and running out of attempts returns a *RetryError wrapping the last failure.
func Retry(ctx context.Context, policy RetryPolicy, op string, fn func(context.Context) error, opts ...RetryOption) error {
	cfg := retryConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	start := time.Now()
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		retry, delay := policy.ShouldRetry(attempt, err)
		if !retry {
			var re RetryableError
			if errors.As(err, &re) && !re.Retryable {
				return fmt.Errorf("%w: %s: %w", ErrNonRetryable, op, re.Err)
			}
			if !IsRetryable(err) {
				return err
			}
			return &RetryError{
				Op:          op,
				Attempts:    attempt + 1,
				MaxAttempts: policy.MaxRetries() + 1,
				LastError:   err,
				Duration:    time.Since(start),
			}
		}

		cfg.logger.Warn("attempt failed, retrying",
			"op", op,
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
