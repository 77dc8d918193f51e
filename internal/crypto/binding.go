package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/kem/mlkem/mlkem512"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// signatureSchemes lists the signature schemes a Binding can bind by name.
var signatureSchemes = map[string]func() sign.Scheme{
	"ML-DSA-44": mldsa44.Scheme,
	"ML-DSA-65": mldsa65.Scheme,
	"ML-DSA-87": mldsa87.Scheme,
}

// kemSchemes lists the KEMs a Binding can bind by name.
var kemSchemes = map[string]func() kem.Scheme{
	"ML-KEM-512":  mlkem512.Scheme,
	"ML-KEM-768":  mlkem768.Scheme,
	"ML-KEM-1024": mlkem1024.Scheme,
}

// SupportedSignatureSchemes returns the names accepted by WithSignatureScheme.
func SupportedSignatureSchemes() []string {
	names := make([]string, 0, len(signatureSchemes))
	for name := range signatureSchemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportedKEMSchemes returns the names accepted by WithKEMScheme.
func SupportedKEMSchemes() []string {
	names := make([]string, 0, len(kemSchemes))
	for name := range kemSchemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Binding is the capability boundary to the signature and KEM primitives.
// Construct it with NewBinding and call Init before any other method.
type Binding struct {
	sigName string
	kemName string
	rand    io.Reader

	once    sync.Once
	initErr error

	// mu serializes every primitive call.
	mu    sync.Mutex
	sig   sign.Scheme
	kem   kem.Scheme
	sizes Sizes
}

// BindingOption configures a Binding.
type BindingOption func(*Binding)

// WithSignatureScheme selects the signature scheme by name, e.g. "ML-DSA-87".
func WithSignatureScheme(name string) BindingOption {
	return func(b *Binding) {
		b.sigName = name
	}
}

// WithKEMScheme selects the KEM by name, e.g. "ML-KEM-1024".
func WithKEMScheme(name string) BindingOption {
	return func(b *Binding) {
		b.kemName = name
	}
}

// WithRandom sets the entropy source for key generation and encapsulation.
// It defaults to crypto/rand. Only tests should override it.
func WithRandom(r io.Reader) BindingOption {
	return func(b *Binding) {
		b.rand = r
	}
}

// NewBinding creates an uninitialized Binding.
func NewBinding(opts ...BindingOption) *Binding {
	b := &Binding{
		sigName: DefaultSignatureScheme,
		kemName: DefaultKEMScheme,
		rand:    rand.Reader,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Init binds the configured schemes. It runs once; later calls return the
// result of the first call.
func (b *Binding) Init() error {
	b.once.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.initErr = b.load()
	})
	return b.initErr
}

func (b *Binding) load() error {
	newSig, ok := signatureSchemes[b.sigName]
	if !ok {
		return fmt.Errorf("%w: signature scheme %q", ErrPrimitiveUnavailable, b.sigName)
	}
	newKEM, ok := kemSchemes[b.kemName]
	if !ok {
		return fmt.Errorf("%w: kem scheme %q", ErrPrimitiveUnavailable, b.kemName)
	}
	if b.rand == nil {
		return fmt.Errorf("%w: no entropy source", ErrPrimitiveUnavailable)
	}

	sig, k := newSig(), newKEM()
	b.sig = sig
	b.kem = k
	b.sizes = Sizes{
		SignaturePublicKey: sig.PublicKeySize(),
		SignatureSecretKey: sig.PrivateKeySize(),
		SignatureMax:       sig.SignatureSize(),
		KEMPublicKey:       k.PublicKeySize(),
		KEMSecretKey:       k.PrivateKeySize(),
		KEMCiphertext:      k.CiphertextSize(),
		SharedSecret:       k.SharedKeySize(),
	}
	return nil
}

// Ready reports whether Init has completed successfully.
func (b *Binding) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sig != nil && b.kem != nil
}

// Sizes returns the buffer sizes of the bound schemes.
// It returns the zero value before a successful Init.
func (b *Binding) Sizes() Sizes {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sizes
}

// SignatureScheme returns the configured signature scheme name.
func (b *Binding) SignatureScheme() string {
	return b.sigName
}

// KEMScheme returns the configured KEM name.
func (b *Binding) KEMScheme() string {
	return b.kemName
}

// lock acquires the call mutex and checks that the binding is ready.
// On success the caller must release b.mu.
func (b *Binding) lock() error {
	b.mu.Lock()
	if b.sig == nil || b.kem == nil {
		err := b.initErr
		b.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrNotInitialized
	}
	return nil
}

// GenerateKeypair creates a fresh keypair for scheme.
func (b *Binding) GenerateKeypair(scheme Scheme) (kp *KeyPair, err error) {
	if err := b.lock(); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()
	defer recoverInto(&err, ErrGenerationFailed)

	switch scheme {
	case SchemeSignature:
		seed := make([]byte, b.sig.SeedSize())
		defer Zeroize(seed)
		if _, err := io.ReadFull(b.rand, seed); err != nil {
			return nil, fmt.Errorf("%w: read seed: %v", ErrGenerationFailed, err)
		}
		pk, sk := b.sig.DeriveKey(seed)
		return newKeyPair(scheme, pk, sk, b.sizes)
	case SchemeKEM:
		seed := make([]byte, b.kem.SeedSize())
		defer Zeroize(seed)
		if _, err := io.ReadFull(b.rand, seed); err != nil {
			return nil, fmt.Errorf("%w: read seed: %v", ErrGenerationFailed, err)
		}
		pk, sk := b.kem.DeriveKeyPair(seed)
		return newKeyPair(scheme, pk, sk, b.sizes)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownScheme, scheme)
	}
}

// Sign signs message with secretKey. The message bytes are signed exactly as
// given; no re-encoding takes place.
func (b *Binding) Sign(secretKey, message []byte) (sig []byte, err error) {
	if err := b.lock(); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	if len(secretKey) != b.sizes.SignatureSecretKey {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(secretKey), b.sizes.SignatureSecretKey)
	}

	work := clone(secretKey)
	defer Zeroize(work)
	defer recoverInto(&err, ErrSigningFailed)

	sk, err := b.sig.UnmarshalBinaryPrivateKey(work)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	return b.sig.Sign(sk, clone(message), b.signatureOpts()), nil
}

// Verify checks signature over message against publicKey.
func (b *Binding) Verify(publicKey, message, signature []byte) (err error) {
	if err := b.lock(); err != nil {
		return err
	}
	defer b.mu.Unlock()

	if len(publicKey) != b.sizes.SignaturePublicKey {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(publicKey), b.sizes.SignaturePublicKey)
	}
	if len(signature) == 0 || len(signature) > b.sizes.SignatureMax {
		return ErrSignatureVerificationFailed
	}
	defer recoverInto(&err, ErrSignatureVerificationFailed)

	pk, err := b.sig.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureVerificationFailed, err)
	}
	if !b.sig.Verify(pk, message, signature, b.signatureOpts()) {
		return ErrSignatureVerificationFailed
	}
	return nil
}

func (b *Binding) signatureOpts() *sign.SignatureOpts {
	if !b.sig.SupportsContext() {
		return nil
	}
	return &sign.SignatureOpts{Context: SigningContext}
}

// Encapsulate produces a ciphertext and shared secret for publicKey.
func (b *Binding) Encapsulate(publicKey []byte) (es *EncapsulatedSecret, err error) {
	if err := b.lock(); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	if len(publicKey) != b.sizes.KEMPublicKey {
		return nil, fmt.Errorf("%w: public key got %d, want %d", ErrInvalidBufferSize, len(publicKey), b.sizes.KEMPublicKey)
	}
	defer recoverInto(&err, ErrEncapsulationFailed)

	pk, err := b.kem.UnmarshalBinaryPublicKey(clone(publicKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncapsulationFailed, err)
	}

	seed := make([]byte, b.kem.EncapsulationSeedSize())
	defer Zeroize(seed)
	if _, err := io.ReadFull(b.rand, seed); err != nil {
		return nil, fmt.Errorf("%w: read seed: %v", ErrEncapsulationFailed, err)
	}

	ct, ss, err := b.kem.EncapsulateDeterministically(pk, seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncapsulationFailed, err)
	}
	if len(ct) != b.sizes.KEMCiphertext || len(ss) != b.sizes.SharedSecret {
		Zeroize(ss)
		return nil, ErrEncapsulationFailed
	}
	return &EncapsulatedSecret{Ciphertext: ct, SharedSecret: ss}, nil
}

// Decapsulate recovers the shared secret encapsulated in ciphertext.
// A secret key that does not match the encapsulating public key yields a
// different secret, not an error. Callers must confirm the key separately.
func (b *Binding) Decapsulate(ciphertext, secretKey []byte) (ss []byte, err error) {
	if err := b.lock(); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	if len(ciphertext) != b.sizes.KEMCiphertext {
		return nil, fmt.Errorf("%w: ciphertext got %d, want %d", ErrInvalidBufferSize, len(ciphertext), b.sizes.KEMCiphertext)
	}
	if len(secretKey) != b.sizes.KEMSecretKey {
		return nil, fmt.Errorf("%w: secret key got %d, want %d", ErrInvalidBufferSize, len(secretKey), b.sizes.KEMSecretKey)
	}

	work := clone(secretKey)
	defer Zeroize(work)
	defer recoverInto(&err, ErrDecapsulationFailed)

	sk, err := b.kem.UnmarshalBinaryPrivateKey(work)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecapsulationFailed, err)
	}
	ss, err = b.kem.Decapsulate(sk, clone(ciphertext))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecapsulationFailed, err)
	}
	return ss, nil
}

// PublicKeyFromSecret recovers the public half of a keypair from its secret key.
func (b *Binding) PublicKeyFromSecret(scheme Scheme, secretKey []byte) (pub []byte, err error) {
	if err := b.lock(); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	want := b.sizes.SecretKeySize(scheme)
	if want == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownScheme, scheme)
	}
	if len(secretKey) != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(secretKey), want)
	}

	work := clone(secretKey)
	defer Zeroize(work)
	defer recoverInto(&err, ErrInvalidKeySize)

	switch scheme {
	case SchemeSignature:
		sk, err := b.sig.UnmarshalBinaryPrivateKey(work)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeySize, err)
		}
		pk, ok := sk.Public().(sign.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected public key type", ErrInvalidKeySize)
		}
		return pk.MarshalBinary()
	default:
		sk, err := b.kem.UnmarshalBinaryPrivateKey(work)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeySize, err)
		}
		return sk.Public().MarshalBinary()
	}
}

// recoverInto converts a panic from the underlying primitive into an error
// wrapping sentinel.
func recoverInto(err *error, sentinel error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", sentinel, r)
	}
}
