package engine

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// DefaultTimeout bounds a single provider call unless the resource declares
// its own timeout.
const DefaultTimeout = 30 * time.Minute

// RetryPolicy configures retry behaviour for provider calls. The engine
// default is no retry at all; a policy is opt-in configuration.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the policy used when retries are requested
// without further tuning.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// RetryWithBackoff runs fn, retrying per policy while shouldRetry classifies
// the failure as transient. The last error is returned when attempts run out.
func RetryWithBackoff(ctx context.Context, policy *RetryPolicy, fn func() error, shouldRetry func(error) bool) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(policy, attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// calculateBackoff returns an exponential delay with jitter.
func calculateBackoff(policy *RetryPolicy, attempt int) time.Duration {
	backoff := policy.BaseDelay
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > policy.MaxDelay {
			backoff = policy.MaxDelay
			break
		}
	}
	jitter := time.Duration(rand.Float64() * float64(backoff) * 0.5)
	delay := backoff + jitter
	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}

// IsTransientError reports whether an error looks like a temporary
// infrastructure failure worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	patterns := []string{
		"timeout",
		"timed out",
		"connection refused",
		"connection reset",
		"temporarily unavailable",
		"too many requests",
		"throttl",
		"rate limit",
		"service unavailable",
		"internal server error",
		"eof",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
