package crypto

import (
	"errors"
	"fmt"
)

var (
	// ErrPrimitiveUnavailable is returned when a configured scheme cannot be bound.
	ErrPrimitiveUnavailable = errors.New("primitive unavailable")

	// ErrNotInitialized is returned when an operation runs before a successful
	// Init. It matches ErrPrimitiveUnavailable.
	ErrNotInitialized = fmt.Errorf("%w: binding not initialized", ErrPrimitiveUnavailable)

	// ErrGenerationFailed is returned when key generation fails internally.
	ErrGenerationFailed = errors.New("key generation failed")

	// ErrSigningFailed is returned when the signature primitive fails internally.
	ErrSigningFailed = errors.New("signing failed")

	// ErrInvalidKeySize is returned when a key does not match the scheme's size.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidBufferSize is returned when a KEM buffer does not match the scheme's size.
	ErrInvalidBufferSize = errors.New("invalid buffer size")

	// ErrUnknownScheme is returned for a Scheme value outside the known set.
	ErrUnknownScheme = errors.New("unknown scheme")

	// ErrEncapsulationFailed is returned when encapsulation fails internally.
	ErrEncapsulationFailed = errors.New("encapsulation failed")

	// ErrDecapsulationFailed is returned when decapsulation fails internally.
	ErrDecapsulationFailed = errors.New("decapsulation failed")

	// ErrSignatureVerificationFailed is returned when signature verification fails.
	ErrSignatureVerificationFailed = errors.New("signature verification failed")

	// ErrDecryptionFailed is returned when decryption fails.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidNonceSize is returned when the nonce size is invalid.
	ErrInvalidNonceSize = errors.New("invalid nonce size")
)
