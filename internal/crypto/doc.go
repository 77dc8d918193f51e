// Package crypto binds the post-quantum primitives used by the portal.
// It exposes signature and key-encapsulation schemes as opaque operations over
// fixed-size byte buffers, so callers never touch lattice internals.
//
// # Algorithm Suite
//
// The default suite is:
//
//   - ML-DSA-65 (NIST FIPS 204): Post-quantum digital signatures, used to prove
//     possession of a principal's secret key over a server-issued challenge.
//
//   - ML-KEM-768 (NIST FIPS 203): Post-quantum key encapsulation for
//     establishing shared secrets between two parties.
//
//   - HKDF-SHA-512 (RFC 5869): Derives symmetric keys from KEM shared secrets
//     with domain separation.
//
//   - AES-256-GCM: Authenticated encryption under a derived key.
//
// ML-DSA-44/87 and ML-KEM-512/1024 can be selected with [WithSignatureScheme]
// and [WithKEMScheme]. All sizes are read from the bound scheme; see [Sizes].
//
// # Buffer Ownership
//
// Every operation copies its inputs in and returns freshly allocated outputs.
// A [Binding] never retains a caller's slice across calls, and working copies
// of secret keys are zeroed before the call returns, on success and on error.
//
// # Concurrency
//
// A [Binding] serializes its operations: only one primitive call is in flight
// at a time. The underlying implementations are not assumed to be reentrant.
//
// # Key Management
//
// Secret keys returned by [Binding.GenerateKeypair] belong to the caller. They
// should never be logged, transmitted in plaintext, or stored in version
// control. Use [KeyPair.Destroy] or [Zeroize] once a key is no longer needed.
package crypto
