package api

import "time"

// Registration statuses.
const (
	StatusAccepted = "accepted"
	StatusVerified = "verified"
	StatusDenied   = "denied"
)

// RegisterRequest is the POST /v1/register body.
type RegisterRequest struct {
	PrincipalID string `json:"principal_id"`
	PublicKey   string `json:"public_key"`
	Algorithm   string `json:"algorithm"`
}

// RegisterResponse is the POST /v1/register response.
type RegisterResponse struct {
	Status string `json:"status"`
}

// ChallengeRequest is the POST /v1/challenge body.
type ChallengeRequest struct {
	PrincipalID string `json:"principal_id"`
}

// ChallengeResponse is the POST /v1/challenge response.
type ChallengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	PrincipalID string    `json:"principal_id"`
	Nonce       string    `json:"nonce"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// VerifyRequest is the POST /v1/verify body.
type VerifyRequest struct {
	PrincipalID string `json:"principal_id"`
	ChallengeID string `json:"challenge_id"`
	Signature   string `json:"signature"`
}

// VerifyResponse is the POST /v1/verify response. Verified and ExpiresAt are
// pointers so that absent fields can be told apart from zero values.
type VerifyResponse struct {
	Status       string     `json:"status"`
	Verified     *bool      `json:"verified,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	SessionToken string     `json:"session_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// HealthResponse is the GET /healthz response.
type HealthResponse struct {
	Status             string `json:"status"`
	SignatureAlgorithm string `json:"signature_algorithm"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// SessionResponse is the GET /v1/session response.
type SessionResponse struct {
	PrincipalID string    `json:"principal_id"`
	Algorithm   string    `json:"algorithm,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}
