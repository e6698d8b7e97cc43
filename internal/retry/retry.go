package retry

import (
	"context"
	"time"
)

const (
	// DefaultMaxRetries is the number of attempts made by Default
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the wait before the second attempt
	DefaultBaseDelay = 100 * time.Millisecond
	// DefaultMaxDelay caps the wait between attempts
	DefaultMaxDelay = 5 * time.Second
	// DefaultMultiplier grows the delay after each failed attempt
	DefaultMultiplier = 2.0
)

// Config configures exponential backoff retry behavior
type Config struct {
	MaxRetries int           // Maximum number of attempts
	BaseDelay  time.Duration // Initial delay between attempts
	MaxDelay   time.Duration // Maximum delay between attempts
	Multiplier float64       // Exponential backoff multiplier
}

// Default returns the retry policy used for remote model APIs
func Default() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Multiplier: DefaultMultiplier,
	}
}

// Do executes fn with exponential backoff.
// Retry stops early when ctx is canceled; the last error from fn is returned otherwise.
func Do[T any](ctx context.Context, config Config, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	backoff := config.BaseDelay

	attempts := config.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * config.Multiplier)
				if config.MaxDelay > 0 && backoff > config.MaxDelay {
					backoff = config.MaxDelay
				}
			}
		}
	}

	return zero, lastErr
}
