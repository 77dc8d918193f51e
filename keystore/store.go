package keystore

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Store manages secret keys of a fixed size on top of a Backend.
//
// Store is safe for concurrent use. Its lock is independent of any flow
// state, so key store reads and writes never wait on network calls.
type Store struct {
	backend Backend
	size    int
	logger  *slog.Logger

	mu sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for lifecycle events. Key bytes are never logged.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a store that accepts secret keys of exactly secretKeySize bytes.
// A nil backend selects a new MemoryBackend.
func New(backend Backend, secretKeySize int, opts ...Option) (*Store, error) {
	if secretKeySize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeySize, secretKeySize)
	}
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{
		backend: backend,
		size:    secretKeySize,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SecretKeySize returns the key size the store accepts.
func (s *Store) SecretKeySize() int {
	return s.size
}

// Put stores secret for principalID, replacing any previous key.
func (s *Store) Put(principalID string, secret []byte) error {
	if err := validatePrincipal(principalID); err != nil {
		return err
	}
	if len(secret) != s.size {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(secret), s.size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Put(principalID, secret); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	s.logger.Debug("secret key stored", "principal_id", principalID)
	return nil
}

// Get returns a handle over a copy of the stored key. The caller should
// Destroy the handle once the key has been used.
func (s *Store) Get(principalID string) (*SecretKeyHandle, error) {
	if err := validatePrincipal(principalID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	secret, err := s.backend.Get(principalID)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if len(secret) != s.size {
		zero(secret)
		return nil, fmt.Errorf("%w: stored key has %d bytes, want %d", ErrInvalidKeySize, len(secret), s.size)
	}
	return newHandle(principalID, secret), nil
}

// HasKey reports whether a usable key is stored for principalID.
func (s *Store) HasKey(principalID string) bool {
	h, err := s.Get(principalID)
	if err != nil {
		return false
	}
	h.Destroy()
	return true
}

// Remove deletes the key for principalID.
func (s *Store) Remove(principalID string) error {
	if err := validatePrincipal(principalID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Remove(principalID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("remove: %w", err)
	}
	s.logger.Debug("secret key removed", "principal_id", principalID)
	return nil
}

// Principals lists the principals with a stored key.
func (s *Store) Principals() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.List()
}

func validatePrincipal(principalID string) error {
	if strings.TrimSpace(principalID) == "" {
		return ErrInvalidPrincipal
	}
	return nil
}
