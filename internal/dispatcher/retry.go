package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMaxAttemptsExceeded is returned when every attempt failed.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// RetryConfig configures exponential backoff.
type RetryConfig struct {
	// MaxAttempts includes the initial attempt.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	return c
}

// Backoff returns the delay before attempt+1.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	d := time.Duration(float64(c.InitialBackoff) * math.Pow(c.Multiplier, float64(attempt-1)))
	if d > c.MaxBackoff || d <= 0 {
		d = c.MaxBackoff
	}
	return d
}

// Retry calls fn until it succeeds, attempts run out, or ctx is done. It
// returns the number of attempts made.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, attempt int) error) (int, error) {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("retry cancelled: %w", err)
		}

		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		// Don't sleep after the last attempt
		if attempt == cfg.MaxAttempts {
			break
		}
		timer := time.NewTimer(cfg.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("retry cancelled: %w", lastErr)
		case <-timer.C:
		}
	}
	return cfg.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, cfg.MaxAttempts, lastErr)
}
