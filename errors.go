package pqportal

import (
	"context"
	"errors"
	"fmt"

	"github.com/pqportal/client-go/internal/api"
	"github.com/pqportal/client-go/internal/crypto"
	"github.com/pqportal/client-go/keystore"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrInvalidPrincipal is returned for an empty principal ID.
	ErrInvalidPrincipal = keystore.ErrInvalidPrincipal

	// ErrPrimitiveUnavailable is returned when the primitive binding could not be
	// initialized or is used before initialization.
	ErrPrimitiveUnavailable = crypto.ErrPrimitiveUnavailable

	// ErrKeyGenerationFailed is returned when keypair generation fails.
	ErrKeyGenerationFailed = crypto.ErrGenerationFailed

	// ErrSigningFailed is returned when the signature primitive fails.
	ErrSigningFailed = crypto.ErrSigningFailed

	// ErrInvalidKeySize is returned when key bytes do not match the scheme's size.
	ErrInvalidKeySize = crypto.ErrInvalidKeySize

	// ErrInvalidBufferSize is returned when a KEM buffer does not match the scheme's size.
	ErrInvalidBufferSize = crypto.ErrInvalidBufferSize

	// ErrDecryptionFailed is returned when SharedKey.Open cannot authenticate a message.
	ErrDecryptionFailed = crypto.ErrDecryptionFailed

	// ErrKeyNotFound is returned when no secret key is stored for a principal.
	ErrKeyNotFound = keystore.ErrNotFound

	// ErrKeyExists is returned by Register when a secret key is already
	// stored for the principal.
	ErrKeyExists = errors.New("secret key already stored for principal")

	// ErrNoLocalKey is returned when a login is attempted without a stored key.
	ErrNoLocalKey = errors.New("no local secret key for principal")

	// ErrFlowAlreadyInProgress is returned when a login is started for a
	// principal that already has one in flight.
	ErrFlowAlreadyInProgress = errors.New("authentication flow already in progress")

	// ErrStaleChallenge is returned when a challenge is expired or bound to
	// another principal. Stale challenges are never signed.
	ErrStaleChallenge = errors.New("stale challenge")

	// ErrVerificationTimeout is returned when no verdict arrives in time.
	ErrVerificationTimeout = errors.New("verification timed out")

	// ErrDenied is returned when the identity service does not verify the signature.
	ErrDenied = errors.New("authentication denied")

	// ErrCanceled is returned when the caller cancels a login.
	ErrCanceled = errors.New("authentication canceled")

	// ErrKeyConfirmationFailed is returned when two parties derived different
	// shared keys.
	ErrKeyConfirmationFailed = errors.New("shared key confirmation failed")

	// ErrRegistrationRejected is returned when the identity service refuses a
	// registration, typically because the principal already exists.
	ErrRegistrationRejected = errors.New("registration rejected")

	// ErrRegistrationUnavailable is returned when a registration could not be
	// submitted for a transient reason. The secret key is kept for a retry.
	ErrRegistrationUnavailable = errors.New("registration service unavailable")

	// ErrServiceUnavailable is returned for transient identity service failures.
	ErrServiceUnavailable = errors.New("identity service unavailable")

	// ErrUnknownPrincipal is returned when the identity service does not know the principal.
	ErrUnknownPrincipal = errors.New("unknown principal")

	// ErrRateLimited is returned when the identity service rate limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// PortalError is implemented by all SDK errors.
type PortalError interface {
	error
	PortalError() // marker method
}

// PrimitiveError reports a failure of the primitive binding. It aborts the
// current flow.
type PrimitiveError struct {
	Op  string
	Err error
}

func (e *PrimitiveError) Error() string {
	return fmt.Sprintf("primitive %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PrimitiveError) Unwrap() error {
	return e.Err
}

// PortalError implements the PortalError interface.
func (e *PrimitiveError) PortalError() {}

// KeyStoreError reports a failure to read or write a principal's secret key.
type KeyStoreError struct {
	Op          string
	PrincipalID string
	Err         error
}

func (e *KeyStoreError) Error() string {
	return fmt.Sprintf("key store %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *KeyStoreError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *KeyStoreError) Is(target error) bool {
	return target == ErrInvalidKeySize && errors.Is(e.Err, keystore.ErrInvalidKeySize)
}

// PortalError implements the PortalError interface.
func (e *KeyStoreError) PortalError() {}

// ProtocolError reports a challenge-response flow that could not complete.
// State is the flow state the principal was left in.
type ProtocolError struct {
	State  FlowState
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%v (%s, state %s)", e.Err, e.Reason, e.State)
	}
	return fmt.Sprintf("%v (state %s)", e.Err, e.State)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// PortalError implements the PortalError interface.
func (e *ProtocolError) PortalError() {}

// ServiceError reports an identity service failure. Kind is the sentinel the
// failure is classified as; Err is the cause.
type ServiceError struct {
	Op         string
	StatusCode int
	Transient  bool
	Kind       error
	Err        error
}

func (e *ServiceError) Error() string {
	msg := e.Op
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *ServiceError) Is(target error) bool {
	if target == nil {
		return false
	}
	if target == e.Kind {
		return true
	}
	return e.Transient && target == ErrServiceUnavailable
}

// PortalError implements the PortalError interface.
func (e *ServiceError) PortalError() {}

// IsTransient reports whether err is an identity service failure that may
// succeed if retried.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Transient
	}
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		api.IsTransient(err)
}

// wrapError converts internal API errors to public errors.
// This ensures that errors.Is() checks work with public sentinel errors.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	svcErr := &ServiceError{Op: op, Transient: api.IsTransient(err), Err: err}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		svcErr.StatusCode = apiErr.StatusCode
		switch {
		case errors.Is(apiErr, api.ErrNotFound):
			svcErr.Kind = ErrUnknownPrincipal
		case errors.Is(apiErr, api.ErrRateLimited):
			svcErr.Kind = ErrRateLimited
		case errors.Is(apiErr, api.ErrDuplicate):
			svcErr.Kind = ErrRegistrationRejected
		}
	}
	if svcErr.Kind == nil && svcErr.Transient {
		svcErr.Kind = ErrServiceUnavailable
	}
	return svcErr
}
