package keystore

import (
	"fmt"
	"sort"
	"sync"
)

// Backend persists secret key bytes keyed by principal ID.
//
// Implementations must copy on the way in and out: callers may zero the
// slices they pass or receive at any time. Get and Remove return ErrNotFound
// (possibly wrapped) for absent entries.
type Backend interface {
	Put(principalID string, secret []byte) error
	Get(principalID string) ([]byte, error)
	Remove(principalID string) error
	List() ([]string, error)
}

// Config carries the settings backends may need when opened by name.
type Config struct {
	// ServiceName namespaces entries in the OS keyring.
	ServiceName string
	// Dir is the directory for file based storage.
	Dir string
	// Passphrase protects file based storage.
	Passphrase string
	// KeyringBackends restricts which keyring implementations may be used,
	// e.g. "keychain", "secret-service", "file". Empty allows all.
	KeyringBackends []string
}

// Factory opens a Backend from configuration.
type Factory func(cfg Config) (Backend, error)

var (
	registry   = make(map[string]Factory)
	registryMu sync.RWMutex
)

func init() {
	RegisterBackend("memory", func(Config) (Backend, error) {
		return NewMemoryBackend(), nil
	})
	RegisterBackend("keyring", func(cfg Config) (Backend, error) {
		return NewKeyringBackend(cfg)
	})
	RegisterBackend("file", func(cfg Config) (Backend, error) {
		return NewFileBackend(cfg.Dir, cfg.Passphrase)
	})
}

// RegisterBackend makes a backend factory available under name.
// Registering an existing name replaces it.
func RegisterBackend(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// OpenBackend opens the backend registered under name.
func OpenBackend(name string, cfg Config) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return factory(cfg)
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
