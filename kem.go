package pqportal

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"sync"

	"github.com/pqportal/client-go/internal/crypto"
)

// SharedKey is a KEM shared secret together with the ciphertext that carried
// it. Two parties hold equal SharedKeys only if the recipient decapsulated
// with the secret key matching the public key the sender encapsulated to.
//
// Decapsulating with the wrong secret key does not fail; it yields an
// unrelated key. Use ConfirmationTag and VerifyConfirmation to detect that
// before relying on the key.
type SharedKey struct {
	mu         sync.Mutex
	secret     []byte
	ciphertext []byte
}

func newSharedKey(secret, ciphertext []byte) *SharedKey {
	return &SharedKey{secret: secret, ciphertext: append([]byte(nil), ciphertext...)}
}

// Ciphertext returns a copy of the encapsulation ciphertext.
func (k *SharedKey) Ciphertext() []byte {
	return append([]byte(nil), k.ciphertext...)
}

// Bytes returns a copy of the shared secret. The caller owns the copy and
// should zero it when done.
func (k *SharedKey) Bytes() []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]byte(nil), k.secret...)
}

// Equal reports whether k and other hold the same secret, in constant time.
func (k *SharedKey) Equal(other *SharedKey) bool {
	if k == nil || other == nil {
		return false
	}
	a, b := k.Bytes(), other.Bytes()
	defer crypto.Zeroize(a)
	defer crypto.Zeroize(b)
	return len(a) > 0 && subtle.ConstantTimeCompare(a, b) == 1
}

// ConfirmationTag returns a MAC over the ciphertext under a key derived from
// the shared secret. The recipient sends it to the sender, who checks it with
// VerifyConfirmation.
func (k *SharedKey) ConfirmationTag() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.secret == nil {
		return nil, &PrimitiveError{Op: "confirm", Err: crypto.ErrInvalidKeySize}
	}
	tag, err := crypto.ConfirmationTag(k.secret, k.ciphertext)
	if err != nil {
		return nil, &PrimitiveError{Op: "confirm", Err: err}
	}
	return tag, nil
}

// VerifyConfirmation checks a tag produced by the peer's ConfirmationTag.
func (k *SharedKey) VerifyConfirmation(tag []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.secret == nil || !crypto.VerifyConfirmationTag(k.secret, k.ciphertext, tag) {
		return ErrKeyConfirmationFailed
	}
	return nil
}

// Seal encrypts plaintext with AES-256-GCM under a key derived from the
// shared secret. The output is nonce || ciphertext || tag.
func (k *SharedKey) Seal(plaintext, aad []byte) ([]byte, error) {
	key, err := k.sealKey()
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(key)

	nonce := make([]byte, crypto.AESNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, &PrimitiveError{Op: "seal", Err: fmt.Errorf("read nonce: %w", err)}
	}
	sealed, err := crypto.SealAES(key, nonce, plaintext, aad)
	if err != nil {
		return nil, &PrimitiveError{Op: "seal", Err: err}
	}
	return sealed, nil
}

// Open decrypts data produced by Seal. Tampered data or a different shared
// key yields ErrDecryptionFailed.
func (k *SharedKey) Open(sealed, aad []byte) ([]byte, error) {
	key, err := k.sealKey()
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(key)

	plaintext, err := crypto.OpenAES(key, sealed, aad)
	if err != nil {
		return nil, &PrimitiveError{Op: "open", Err: err}
	}
	return plaintext, nil
}

func (k *SharedKey) sealKey() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.secret == nil {
		return nil, &PrimitiveError{Op: "seal", Err: crypto.ErrInvalidKeySize}
	}
	key, err := crypto.DeriveKey(k.secret, k.ciphertext, []byte(crypto.HKDFSealContext), crypto.AESKeySize)
	if err != nil {
		return nil, &PrimitiveError{Op: "derive", Err: err}
	}
	return key, nil
}

// Destroy zeroes the shared secret. Later operations fail.
func (k *SharedKey) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	crypto.Zeroize(k.secret)
	k.secret = nil
}

func (k *SharedKey) String() string { return "SharedKey([REDACTED])" }

// GoString implements fmt.GoStringer.
func (k *SharedKey) GoString() string { return k.String() }

// GenerateKEMKeyPair generates a recipient keypair for the bound KEM.
func (c *Client) GenerateKEMKeyPair() (*KeyPair, error) {
	kp, err := c.binding.GenerateKeypair(crypto.SchemeKEM)
	if err != nil {
		return nil, &PrimitiveError{Op: "generate", Err: err}
	}
	return kp, nil
}

// Encapsulate creates a fresh shared key for recipientPublicKey. Only the
// returned ciphertext is meant for transmission.
func (c *Client) Encapsulate(recipientPublicKey []byte) ([]byte, *SharedKey, error) {
	es, err := c.binding.Encapsulate(recipientPublicKey)
	if err != nil {
		return nil, nil, &PrimitiveError{Op: "encapsulate", Err: err}
	}
	return es.Ciphertext, newSharedKey(es.SharedSecret, es.Ciphertext), nil
}

// Decapsulate recovers the shared key carried by ciphertext.
func (c *Client) Decapsulate(ciphertext, secretKey []byte) (*SharedKey, error) {
	ss, err := c.binding.Decapsulate(ciphertext, secretKey)
	if err != nil {
		return nil, &PrimitiveError{Op: "decapsulate", Err: err}
	}
	return newSharedKey(ss, ciphertext), nil
}
