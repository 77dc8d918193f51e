package keystore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/99designs/keyring"
)

// DefaultServiceName namespaces keyring entries when Config.ServiceName is empty.
const DefaultServiceName = "pqportal"

// KeyringBackend stores secret keys in an OS credential store through
// github.com/99designs/keyring.
type KeyringBackend struct {
	ring keyring.Keyring
}

// NewKeyringBackend opens a keyring for cfg.ServiceName. When cfg.Passphrase
// is set it is used to unlock keyring backends that prompt for one, such as
// the encrypted file keyring, so the backend never blocks on a terminal.
func NewKeyringBackend(cfg Config) (*KeyringBackend, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}

	kcfg := keyring.Config{
		ServiceName: name,
		FileDir:     cfg.Dir,
	}
	for _, b := range cfg.KeyringBackends {
		kcfg.AllowedBackends = append(kcfg.AllowedBackends, keyring.BackendType(b))
	}
	if cfg.Passphrase != "" {
		kcfg.FilePasswordFunc = keyring.FixedStringPrompt(cfg.Passphrase)
	}

	ring, err := keyring.Open(kcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return &KeyringBackend{ring: ring}, nil
}

// NewKeyringBackendFrom wraps an already opened keyring.
func NewKeyringBackendFrom(ring keyring.Keyring) *KeyringBackend {
	return &KeyringBackend{ring: ring}
}

func (k *KeyringBackend) Put(principalID string, secret []byte) error {
	err := k.ring.Set(keyring.Item{
		Key:         principalID,
		Data:        cloneBytes(secret),
		Label:       DefaultServiceName + " secret key",
		Description: "post-quantum signature secret key",
	})
	if err != nil {
		return fmt.Errorf("failed to store key in keyring: %w", err)
	}
	return nil
}

func (k *KeyringBackend) Get(principalID string) ([]byte, error) {
	item, err := k.ring.Get(principalID)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key from keyring: %w", err)
	}
	return item.Data, nil
}

func (k *KeyringBackend) Remove(principalID string) error {
	if _, err := k.Get(principalID); err != nil {
		return err
	}
	if err := k.ring.Remove(principalID); err != nil {
		return fmt.Errorf("failed to remove key from keyring: %w", err)
	}
	return nil
}

func (k *KeyringBackend) List() ([]string, error) {
	keys, err := k.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys from keyring: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
