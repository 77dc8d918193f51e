package keystore

import "errors"

var (
	// ErrNotFound is returned when no secret key is stored for a principal.
	ErrNotFound = errors.New("secret key not found")

	// ErrInvalidKeySize is returned when secret key bytes do not match the
	// size the store was created for.
	ErrInvalidKeySize = errors.New("invalid secret key size")

	// ErrInvalidPrincipal is returned for an empty principal ID.
	ErrInvalidPrincipal = errors.New("invalid principal id")

	// ErrUnknownBackend is returned by OpenBackend for an unregistered name.
	ErrUnknownBackend = errors.New("unknown keystore backend")

	// ErrLocked is returned by FileBackend when an entry cannot be decrypted
	// with the configured passphrase.
	ErrLocked = errors.New("keystore entry could not be unlocked")
)
