// Package retry provides bounded retries with exponential backoff and
// jitter. The retryability predicate is status-aware: 429 and 5xx responses
// and known network failures retry, any other 4xx never does.
package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// Config tunes retry behavior.
type Config struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int `yaml:"max_attempts"`
	// InitialDelay is the backoff after the first failure.
	InitialDelay time.Duration `yaml:"initial_delay"`
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration `yaml:"max_delay"`
	// Multiplier is the exponential growth factor.
	Multiplier float64 `yaml:"multiplier"`
	// Jitter randomizes each delay to avoid synchronized retries.
	Jitter bool `yaml:"jitter"`
	// ShouldRetry decides whether an error is worth another attempt.
	// Defaults to ShouldRetry.
	ShouldRetry func(error) bool `yaml:"-"`
}

// DefaultConfig returns the runtime's default retry settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// ShouldRetry is the default predicate: transient infrastructure failures
// (HTTP 429, 5xx, network-level errors) retry; all other client errors are
// permanent.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if status := core.HTTPStatus(err); status != 0 {
		return status == 429 || status >= 500
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"econnrefused", "econnreset", "etimedout",
		"connection refused", "connection reset", "broken pipe",
		"no such host", "i/o timeout", "unexpected eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Delay computes the backoff before attempt n (0-indexed): the exponential
// schedule capped at MaxDelay, optionally perturbed by jitter in [0.5, 1.5).
func (c Config) Delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.Jitter {
		d *= 0.5 + rand.Float64()
		if d > float64(c.MaxDelay) {
			d = float64(c.MaxDelay)
		}
	}
	return time.Duration(d)
}

// Do runs op up to MaxAttempts times. The last error propagates unchanged;
// context cancellation during a backoff wait stops retrying immediately.
func Do(ctx context.Context, config Config, op func() error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	shouldRetry := config.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = ShouldRetry
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(config.Delay(attempt)):
		}
	}
	return lastErr
}

// DoWithValue is Do for operations returning a value.
func DoWithValue[T any](ctx context.Context, config Config, op func() (T, error)) (T, error) {
	var value T
	err := Do(ctx, config, func() error {
		var opErr error
		value, opErr = op()
		return opErr
	})
	return value, err
}
