package api

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.BaseDelay != 250*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 250ms", cfg.BaseDelay)
	}
	if cfg.MaxDelay != 5*time.Second {
		t.Errorf("MaxDelay = %v, want 5s", cfg.MaxDelay)
	}
	if cfg.RetryableOn == nil {
		t.Error("RetryableOn is nil")
	}
}

func TestRetryConfig_ShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	tests := []struct {
		name       string
		attempt    int
		statusCode int
		expected   bool
	}{
		{"first attempt, retryable", 0, 503, true},
		{"last allowed attempt", 2, 503, true},
		{"max attempts reached", 3, 503, false},
		{"conflict is final", 0, 409, false},
		{"bad request is final", 0, 400, false},
		{"unauthorized is final", 0, 401, false},
		{"retryable 408", 0, 408, true},
		{"retryable 429", 0, 429, true},
		{"retryable 500", 0, 500, true},
		{"retryable 502", 0, 502, true},
		{"retryable 504", 0, 504, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.ShouldRetry(tt.attempt, tt.statusCode); got != tt.expected {
				t.Errorf("ShouldRetry(%d, %d) = %v, want %v", tt.attempt, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestRetryConfig_ShouldRetry_NilPredicate(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 1}
	if !cfg.ShouldRetry(0, 503) {
		t.Error("nil RetryableOn should fall back to the default predicate")
	}
}

func TestRetryConfig_Delay(t *testing.T) {
	cfg := &RetryConfig{
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
	}

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for attempt, w := range want {
		if got := cfg.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestRetryConfig_Delay_JitterBounds(t *testing.T) {
	cfg := &RetryConfig{
		BaseDelay:  time.Second,
		MaxDelay:   1200 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.5,
	}

	for i := 0; i < 100; i++ {
		d := cfg.Delay(0)
		if d < 500*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("Delay(0) = %v, want within [500ms, 1.2s]", d)
		}
	}
}

func TestRetryConfig_Wait_ContextCancellation(t *testing.T) {
	cfg := &RetryConfig{BaseDelay: 10 * time.Second, Multiplier: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := cfg.Wait(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait() took %v after cancellation", elapsed)
	}
}
