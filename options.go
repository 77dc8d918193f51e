package pqportal

import (
	"log/slog"
	"time"

	"github.com/pqportal/client-go/keystore"
)

const (
	defaultVerificationTimeout = 30 * time.Second
	defaultSessionTTL          = 15 * time.Minute
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	binding             *Binding
	keys                *keystore.Store
	logger              *slog.Logger
	verificationTimeout time.Duration
	sessionTTL          time.Duration
	clock               func() time.Time
}

// Option configures the client.
type Option func(*clientConfig)

// WithBinding sets the primitive binding. It is initialized by New if needed.
func WithBinding(b *Binding) Option {
	return func(c *clientConfig) {
		c.binding = b
	}
}

// WithKeyStore sets the key store. Its key size must match the binding's
// signature secret key size.
func WithKeyStore(s *keystore.Store) Option {
	return func(c *clientConfig) {
		c.keys = s
	}
}

// WithLogger sets the logger. Secret material is never logged.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithVerificationTimeout bounds the wait for a verdict after a signature
// has been submitted.
func WithVerificationTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		if d > 0 {
			c.verificationTimeout = d
		}
	}
}

// WithSessionTTL sets the session lifetime used when the identity service
// gives no expiry.
func WithSessionTTL(d time.Duration) Option {
	return func(c *clientConfig) {
		if d > 0 {
			c.sessionTTL = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *clientConfig) {
		if now != nil {
			c.clock = now
		}
	}
}
