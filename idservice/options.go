package idservice

import (
	"log/slog"
	"time"
)

const (
	DefaultChallengeTTL = 2 * time.Minute
	DefaultSessionTTL   = 15 * time.Minute
	NonceSize           = 32
)

type config struct {
	challengeTTL time.Duration
	sessionTTL   time.Duration
	rps          float64
	burst        int
	tokens       *TokenIssuer
	metrics      *Metrics
	logger       *slog.Logger
	clock        func() time.Time
}

// Option configures a Service.
type Option func(*config)

// WithChallengeTTL sets how long an issued challenge may be answered.
func WithChallengeTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.challengeTTL = d
		}
	}
}

// WithSessionTTL sets the lifetime of issued session tokens.
func WithSessionTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.sessionTTL = d
		}
	}
}

// WithRateLimit limits challenge requests per principal. A non-positive
// rate disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.rps = rps
		c.burst = burst
	}
}

// WithTokenIssuer sets the session token signer. By default a fresh key is
// generated.
func WithTokenIssuer(t *TokenIssuer) Option {
	return func(c *config) {
		c.tokens = t
	}
}

// WithMetrics records service activity in m.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}
