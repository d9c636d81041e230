package exchange

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/amirphl/signal-trader/internal/utils"
)

// RetryConfig controls the exponential backoff used by every source.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	// Jitter is the fractional spread applied to each delay, e.g. 0.1 for ±10%.
	Jitter float64 `yaml:"jitter"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   5,
		BaseDelay:     2 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
		Jitter:        0.1,
	}
}

// retryableError marks a failure worth another attempt.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

func retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err}
}

// withRetry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done.
func withRetry(ctx context.Context, name string, cfg RetryConfig, fn func(attempt int) error) error {
	attempts := max(cfg.MaxAttempts, 1)
	var lastErr error
	for attempt := range attempts {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if _, ok := err.(retryableError); !ok {
			return err
		}
		utils.GetLogger().Warnf("%s | attempt %d/%d failed: %v", name, attempt+1, attempts, err)
		if attempt == attempts-1 {
			break
		}

		delay := calculateRetryDelay(attempt, cfg.BaseDelay, cfg.MaxDelay, cfg.BackoffFactor, cfg.Jitter)
		utils.GetLogger().Debugf("%s | retrying in %v", name, delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("failed after %d attempts, last error: %w", attempts, lastErr)
}

// calculateRetryDelay returns baseDelay * backoffFactor^attempt capped at
// maxDelay, spread by ±jitterRange.
func calculateRetryDelay(attempt int, baseDelay, maxDelay time.Duration, backoffFactor, jitterRange float64) time.Duration {
	if backoffFactor < 1 {
		backoffFactor = 1
	}
	delay := float64(baseDelay) * math.Pow(backoffFactor, float64(attempt))
	if maxDelay > 0 && delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	delay += delay * jitterRange * (2*rand.Float64() - 1)
	if delay < 0 {
		delay = float64(baseDelay)
	}
	return time.Duration(delay)
}

// isRetryableHTTPStatus reports rate limits and transient server errors.
func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
