package retry

import (
	"context"
	"errors"
	"fmt"

	errs "instadb/pkg/errors"
	"instadb/pkg/logger"
	"instadb/pkg/ratelimit"
)

// Operation is one attempt of a retried call
type Operation func(ctx context.Context) error

// Config controls a retry loop
type Config struct {
	// MaxAttempts of 0 means unlimited
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf reports whether a failure is worth another attempt
	RetryIf func(error) bool
	// BeforeRetry runs after a retryable failure and before the wait.
	// A non-nil return ends the loop with that error.
	BeforeRetry func(attempt int, err error) error
	// Sleep waits between attempts; ratelimit.Sleep when nil
	Sleep  ratelimit.SleepFunc
	Logger logger.Logger
}

// DefaultConfig allows three attempts with exponential backoff
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.NewNopLogger(),
	}
}

// DefaultRetryIf retries transient typed errors and untyped errors, never a
// cancelled context
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var typed *errs.Error
	if errors.As(err, &typed) {
		return errs.IsRetryable(typed.Type)
	}
	return true
}

func (c *Config) defaults() {
	if c.RetryIf == nil {
		c.RetryIf = DefaultRetryIf
	}
	if c.Backoff == nil {
		c.Backoff = &ConstantBackoff{}
	}
	if c.Sleep == nil {
		c.Sleep = ratelimit.Sleep
	}
	if c.Logger == nil {
		c.Logger = logger.NewNopLogger()
	}
}

// Do runs op until it succeeds, fails with an error RetryIf rejects,
// BeforeRetry refuses, attempts run out or ctx is done.
func Do(ctx context.Context, op Operation, cfg Config) error {
	cfg.defaults()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				cfg.Logger.WithField("attempt", attempt).Debug("Succeeded after retry")
			}
			return nil
		}
		if !cfg.RetryIf(err) {
			return err
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			cfg.Logger.ErrorWithFields("Giving up", map[string]interface{}{
				"attempts": attempt,
				"error":    err.Error(),
			})
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		if cfg.BeforeRetry != nil {
			if herr := cfg.BeforeRetry(attempt, err); herr != nil {
				return herr
			}
		}

		delay := nextDelay(cfg.Backoff, attempt, err)
		cfg.Logger.WarnWithFields("Retrying", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": cfg.MaxAttempts,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
		})

		if err := cfg.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult is Do for operations that produce a value
func DoWithResult[T any](ctx context.Context, op func(ctx context.Context) (T, error), cfg Config) (T, error) {
	var result T
	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, cfg)
	return result, err
}
