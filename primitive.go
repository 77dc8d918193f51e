package pqportal

import "github.com/pqportal/client-go/internal/crypto"

// Binding is the post-quantum primitive binding shared by all flows.
type Binding = crypto.Binding

// BindingOption configures a Binding.
type BindingOption = crypto.BindingOption

// KeyPair is a public/secret key pair produced by the binding.
type KeyPair = crypto.KeyPair

// Scheme selects the signature or KEM algorithm of a binding.
type Scheme = crypto.Scheme

// Sizes holds the fixed buffer sizes of the bound schemes.
type Sizes = crypto.Sizes

// Scheme constants.
const (
	SchemeSignature = crypto.SchemeSignature
	SchemeKEM       = crypto.SchemeKEM
)

// Default algorithm names.
const (
	DefaultSignatureScheme = crypto.DefaultSignatureScheme
	DefaultKEMScheme       = crypto.DefaultKEMScheme
)

// NewBinding returns an uninitialized binding. New initializes it.
func NewBinding(opts ...BindingOption) *Binding {
	return crypto.NewBinding(opts...)
}

// WithSignatureScheme selects the signature algorithm, e.g. "ML-DSA-87".
func WithSignatureScheme(name string) BindingOption {
	return crypto.WithSignatureScheme(name)
}

// WithKEMScheme selects the KEM algorithm, e.g. "ML-KEM-1024".
func WithKEMScheme(name string) BindingOption {
	return crypto.WithKEMScheme(name)
}

// SupportedSignatureSchemes lists the signature algorithms a binding accepts.
func SupportedSignatureSchemes() []string {
	return crypto.SupportedSignatureSchemes()
}

// SupportedKEMSchemes lists the KEM algorithms a binding accepts.
func SupportedKEMSchemes() []string {
	return crypto.SupportedKEMSchemes()
}
