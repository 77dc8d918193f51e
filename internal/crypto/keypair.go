package crypto

import (
	"encoding"
	"fmt"
)

// KeyPair is a principal's asymmetric key material for one scheme.
// A KeyPair is never partially populated.
type KeyPair struct {
	// Algorithm is the scheme family the keys belong to.
	Algorithm Scheme
	// PublicKey is the raw public key bytes.
	PublicKey []byte
	// SecretKey is the raw secret key bytes.
	SecretKey []byte
}

// EncapsulatedSecret is the result of a KEM encapsulation.
type EncapsulatedSecret struct {
	// Ciphertext is transmitted to the recipient.
	Ciphertext []byte
	// SharedSecret is never transmitted.
	SharedSecret []byte
}

func newKeyPair(scheme Scheme, pk, sk encoding.BinaryMarshaler, sizes Sizes) (*KeyPair, error) {
	pub, err := pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: marshal public key: %v", ErrGenerationFailed, err)
	}
	sec, err := sk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: marshal secret key: %v", ErrGenerationFailed, err)
	}
	if len(pub) != sizes.PublicKeySize(scheme) || len(sec) != sizes.SecretKeySize(scheme) {
		Zeroize(sec)
		return nil, fmt.Errorf("%w: unexpected key sizes", ErrGenerationFailed)
	}
	return &KeyPair{
		Algorithm: scheme,
		PublicKey: pub,
		SecretKey: sec,
	}, nil
}

// Destroy zeroes the secret half of the keypair.
func (k *KeyPair) Destroy() {
	if k == nil {
		return
	}
	Zeroize(k.SecretKey)
	k.SecretKey = nil
}

// Destroy zeroes the shared secret.
func (e *EncapsulatedSecret) Destroy() {
	if e == nil {
		return
	}
	Zeroize(e.SharedSecret)
	e.SharedSecret = nil
}
