package api

import (
	"context"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// RetryConfig configures retry behavior for failed HTTP requests.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts after the first request.
	MaxRetries int
	// BaseDelay is the initial delay between retry attempts.
	BaseDelay time.Duration
	// MaxDelay caps the delay between retry attempts, jitter included.
	MaxDelay time.Duration
	// Multiplier is the factor by which the delay increases after each attempt.
	Multiplier float64
	// Jitter is the randomization factor (0.0 to 1.0) applied to delays.
	Jitter float64
	// RetryableOn determines if a status code should trigger a retry.
	RetryableOn func(statusCode int) bool
}

// DefaultRetryableStatus reports whether statusCode is worth retrying.
func DefaultRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
		RetryableOn: DefaultRetryableStatus,
	}
}

// ShouldRetry determines if a request that ended with statusCode should be retried.
func (r *RetryConfig) ShouldRetry(attempt int, statusCode int) bool {
	if attempt >= r.MaxRetries {
		return false
	}
	on := r.RetryableOn
	if on == nil {
		on = DefaultRetryableStatus
	}
	return on(statusCode)
}

// Delay calculates the delay before retry number attempt+1.
func (r *RetryConfig) Delay(attempt int) time.Duration {
	delay := float64(r.BaseDelay) * math.Pow(r.Multiplier, float64(attempt))
	if r.Jitter > 0 {
		jitterAmount := delay * r.Jitter
		delay = delay - jitterAmount + (rand.Float64() * 2 * jitterAmount)
	}
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}
	return time.Duration(delay)
}

// Wait blocks for Delay(attempt) or until ctx is done.
func (r *RetryConfig) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(r.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
