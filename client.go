package pqportal

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pqportal/client-go/internal/privacylog"
	"github.com/pqportal/client-go/keystore"
)

// Client runs registration, challenge-response login and KEM flows for the
// principals whose keys it holds.
//
// Client is safe for concurrent use. At most one login per principal may be
// in flight, and at most one session is active at a time.
type Client struct {
	identity IdentityService
	binding  *Binding
	keys     *keystore.Store
	logger   *slog.Logger
	now      func() time.Time

	verificationTimeout time.Duration
	sessionTTL          time.Duration

	mu       sync.Mutex
	flows    map[string]FlowState
	inFlight map[string]bool
	session  *Session
	closed   bool
}

// New creates a client backed by identity. The binding is initialized here
// so that a missing primitive surfaces immediately.
func New(identity IdentityService, opts ...Option) (*Client, error) {
	if identity == nil {
		return nil, errors.New("identity service is required")
	}

	cfg := &clientConfig{
		verificationTimeout: defaultVerificationTimeout,
		sessionTTL:          defaultSessionTTL,
		clock:               time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	} else {
		logger = slog.New(privacylog.WrapHandler(logger.Handler()))
	}

	binding := cfg.binding
	if binding == nil {
		binding = NewBinding()
	}
	if err := binding.Init(); err != nil {
		return nil, &PrimitiveError{Op: "init", Err: err}
	}
	sizes := binding.Sizes()

	keys := cfg.keys
	if keys == nil {
		var err error
		keys, err = keystore.New(keystore.NewMemoryBackend(), sizes.SignatureSecretKey, keystore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
	} else if keys.SecretKeySize() != sizes.SignatureSecretKey {
		return nil, &KeyStoreError{
			Op:  "open",
			Err: fmt.Errorf("%w: store holds %d-byte keys, binding needs %d", keystore.ErrInvalidKeySize, keys.SecretKeySize(), sizes.SignatureSecretKey),
		}
	}

	return &Client{
		identity:            identity,
		binding:             binding,
		keys:                keys,
		logger:              logger,
		now:                 cfg.clock,
		verificationTimeout: cfg.verificationTimeout,
		sessionTTL:          cfg.sessionTTL,
		flows:               make(map[string]FlowState),
		inFlight:            make(map[string]bool),
	}, nil
}

// Binding returns the client's primitive binding.
func (c *Client) Binding() *Binding {
	return c.binding
}

// KeyStore returns the client's key store.
func (c *Client) KeyStore() *keystore.Store {
	return c.keys
}

// HasKey reports whether a usable secret key is stored for principalID.
func (c *Client) HasKey(principalID string) bool {
	return c.keys.HasKey(principalID)
}

// Close ends the current session. Later calls fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.session != nil {
		c.session.revoke()
		c.session = nil
	}
	return nil
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}
