package pqportal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pqportal/client-go/internal/api"
	"github.com/pqportal/client-go/internal/crypto"
)

// RegistrationStatus is the identity service's answer to a registration.
type RegistrationStatus int

const (
	// RegistrationAccepted means the public key was recorded.
	RegistrationAccepted RegistrationStatus = iota + 1
	// RegistrationDuplicate means the principal already has a key registered.
	RegistrationDuplicate
)

func (s RegistrationStatus) String() string {
	switch s {
	case RegistrationAccepted:
		return "accepted"
	case RegistrationDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Challenge is a single-use nonce issued for one principal.
type Challenge struct {
	ID          string
	PrincipalID string
	Nonce       []byte
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// VerdictStatus is the outcome of a verification. The zero value is a denial.
type VerdictStatus int

const (
	VerdictDenied VerdictStatus = iota
	VerdictVerified
)

func (s VerdictStatus) String() string {
	if s == VerdictVerified {
		return "verified"
	}
	return "denied"
}

// Verdict is the identity service's answer to a signed challenge.
type Verdict struct {
	Status       VerdictStatus
	Reason       string
	SessionToken string
	ExpiresAt    time.Time
}

// Verified reports whether v is an explicit positive verdict.
func (v *Verdict) Verified() bool {
	return v != nil && v.Status == VerdictVerified
}

// IdentityService is the remote collaborator that records public keys, issues
// challenges and verifies signatures.
//
// Implementations should honour ctx. Register returns RegistrationDuplicate
// (not an error) for a known principal. Errors that may succeed on retry
// should satisfy IsTransient.
type IdentityService interface {
	Register(ctx context.Context, principalID string, publicKey []byte, algorithm string) (RegistrationStatus, error)
	RequestChallenge(ctx context.Context, principalID string) (*Challenge, error)
	Verify(ctx context.Context, principalID, challengeID string, signature []byte) (*Verdict, error)
}

// HTTPIdentityService talks to an identity service over HTTP.
type HTTPIdentityService struct {
	api *api.Client
}

// HTTPOption configures an HTTPIdentityService.
type HTTPOption = api.Option

// NewHTTPIdentityService returns an IdentityService for the service at baseURL.
func NewHTTPIdentityService(baseURL string, opts ...HTTPOption) (*HTTPIdentityService, error) {
	c, err := api.New(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &HTTPIdentityService{api: c}, nil
}

// HTTP transport options, re-exported for NewHTTPIdentityService.
var (
	WithHTTPClient = api.WithHTTPClient
	WithTimeout    = api.WithTimeout
	WithRetries    = api.WithRetries
	WithRetryDelay = api.WithRetryDelay
	WithRetryOn    = api.WithRetryOn
	WithUserAgent  = api.WithUserAgent
)

func (s *HTTPIdentityService) Register(ctx context.Context, principalID string, publicKey []byte, algorithm string) (RegistrationStatus, error) {
	resp, err := s.api.Register(ctx, api.RegisterRequest{
		PrincipalID: principalID,
		PublicKey:   crypto.ToBase64URL(publicKey),
		Algorithm:   algorithm,
	})
	if errors.Is(err, api.ErrDuplicate) {
		return RegistrationDuplicate, nil
	}
	if err != nil {
		return 0, wrapError("register", err)
	}
	if resp.Status != api.StatusAccepted {
		return 0, &ServiceError{Op: "register", Err: fmt.Errorf("unexpected status %q", resp.Status)}
	}
	return RegistrationAccepted, nil
}

func (s *HTTPIdentityService) RequestChallenge(ctx context.Context, principalID string) (*Challenge, error) {
	resp, err := s.api.RequestChallenge(ctx, principalID)
	if err != nil {
		return nil, wrapError("challenge", err)
	}
	nonce, err := crypto.DecodeBase64(resp.Nonce)
	if err != nil {
		return nil, &ServiceError{Op: "challenge", Err: fmt.Errorf("invalid nonce encoding: %w", err)}
	}
	return &Challenge{
		ID:          resp.ChallengeID,
		PrincipalID: resp.PrincipalID,
		Nonce:       nonce,
		IssuedAt:    resp.IssuedAt,
		ExpiresAt:   resp.ExpiresAt,
	}, nil
}

// Verify submits the signature once. A malformed response or a 4xx answer is
// returned as a denial rather than an error.
func (s *HTTPIdentityService) Verify(ctx context.Context, principalID, challengeID string, signature []byte) (*Verdict, error) {
	resp, err := s.api.Verify(ctx, api.VerifyRequest{
		PrincipalID: principalID,
		ChallengeID: challengeID,
		Signature:   crypto.ToBase64URL(signature),
	})
	if errors.Is(err, api.ErrMalformedResponse) {
		return &Verdict{Status: VerdictDenied, Reason: "malformed verdict"}, nil
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < 500 && !api.IsTransient(err) {
		return &Verdict{Status: VerdictDenied, Reason: apiErr.Error()}, nil
	}
	if err != nil {
		return nil, wrapError("verify", err)
	}
	return decodeVerdict(resp), nil
}

// decodeVerdict is default-deny: only status "verified" together with
// verified=true yields VerdictVerified.
func decodeVerdict(resp *api.VerifyResponse) *Verdict {
	if resp == nil {
		return &Verdict{Status: VerdictDenied, Reason: "empty verdict"}
	}

	v := &Verdict{Status: VerdictDenied, Reason: resp.Reason}
	switch {
	case resp.Status == api.StatusVerified && resp.Verified != nil && *resp.Verified:
		v.Status = VerdictVerified
		v.Reason = ""
		v.SessionToken = resp.SessionToken
		if resp.ExpiresAt != nil {
			v.ExpiresAt = *resp.ExpiresAt
		}
	case resp.Status == api.StatusVerified || (resp.Verified != nil && *resp.Verified):
		v.Reason = "contradictory verdict"
	case resp.Status == "" && resp.Verified == nil:
		v.Reason = "incomplete verdict"
	case v.Reason == "":
		v.Reason = "denied by identity service"
	}
	return v
}

// Health checks that the identity service is reachable.
func (s *HTTPIdentityService) Health(ctx context.Context) error {
	if _, err := s.api.Health(ctx); err != nil {
		return wrapError("health", err)
	}
	return nil
}
