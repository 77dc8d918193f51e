// Package keystore manages the lifetime of secret key bytes on the local device.
//
// A [Store] is the single source of truth for whether a usable secret key is
// held for a principal. It validates key sizes, hands out [SecretKeyHandle]
// values for signing, and delegates persistence to a pluggable [Backend]:
//
//   - [MemoryBackend] keeps copies in process memory (the default).
//   - [KeyringBackend] stores keys in the OS keychain, Secret Service,
//     KWallet, WinCred, pass, or a passphrase-protected keyring file.
//   - [FileBackend] writes one Argon2id/XChaCha20-Poly1305 encrypted file per
//     principal.
//
// Backends are also available by name through [OpenBackend], which lets
// commands select storage from configuration.
//
// Secret key bytes are never rendered: SecretKeyHandle implements every
// formatting and marshaling interface to emit a redaction marker, and code
// that only needs presence should call [Store.HasKey].
package keystore
