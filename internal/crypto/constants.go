package crypto

const (
	// DefaultSignatureScheme is the signature scheme bound when none is configured.
	DefaultSignatureScheme = "ML-DSA-65"
	// DefaultKEMScheme is the KEM bound when none is configured.
	DefaultKEMScheme = "ML-KEM-768"

	// SigningContext is the ML-DSA context string used for challenge signatures.
	SigningContext = "pqportal:challenge:v1"

	// HKDFConfirmContext is the HKDF info string for KEM key confirmation keys.
	HKDFConfirmContext = "pqportal:kem:confirm:v1"
	// HKDFSealContext is the HKDF info string for KEM sealing keys.
	HKDFSealContext = "pqportal:kem:seal:v1"

	// AESKeySize is the size of an AES-256 key in bytes.
	AESKeySize = 32
	// AESNonceSize is the size of an AES-GCM nonce in bytes.
	AESNonceSize = 12
	// AESTagSize is the size of an AES-GCM authentication tag in bytes.
	AESTagSize = 16
)

// Scheme identifies which family of key material a KeyPair belongs to.
type Scheme int

const (
	// SchemeSignature marks signature key material.
	SchemeSignature Scheme = iota + 1
	// SchemeKEM marks key-encapsulation key material.
	SchemeKEM
)

func (s Scheme) String() string {
	switch s {
	case SchemeSignature:
		return "signature"
	case SchemeKEM:
		return "kem"
	default:
		return "unknown"
	}
}

// Sizes holds the fixed buffer sizes of the bound schemes.
type Sizes struct {
	SignaturePublicKey int
	SignatureSecretKey int
	SignatureMax       int
	KEMPublicKey       int
	KEMSecretKey       int
	KEMCiphertext      int
	SharedSecret       int
}

// PublicKeySize returns the public key size for scheme, or 0 if unknown.
func (s Sizes) PublicKeySize(scheme Scheme) int {
	switch scheme {
	case SchemeSignature:
		return s.SignaturePublicKey
	case SchemeKEM:
		return s.KEMPublicKey
	}
	return 0
}

// SecretKeySize returns the secret key size for scheme, or 0 if unknown.
func (s Sizes) SecretKeySize(scheme Scheme) int {
	switch scheme {
	case SchemeSignature:
		return s.SignatureSecretKey
	case SchemeKEM:
		return s.KEMSecretKey
	}
	return 0
}
