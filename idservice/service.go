package idservice

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pqportal/client-go/internal/crypto"
	"github.com/pqportal/client-go/internal/privacylog"
)

const maxPrincipalLen = 256

// Challenge is an issued single-use nonce.
type Challenge struct {
	ID          string
	PrincipalID string
	Nonce       []byte
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Verdict is the outcome of Verify. Reason is set for denials.
type Verdict struct {
	Verified     bool
	Reason       string
	SessionToken string
	ExpiresAt    time.Time
}

// Denial reasons.
const (
	ReasonUnknownPrincipal = "unknown principal"
	ReasonNoChallenge      = "no pending challenge"
	ReasonChallengeExpired = "challenge expired"
	ReasonBadSignature     = "signature does not verify"
)

type principal struct {
	publicKey    []byte
	algorithm    string
	registeredAt time.Time
}

// Service is the identity service state. It is safe for concurrent use.
type Service struct {
	binding      *crypto.Binding
	challengeTTL time.Duration
	sessionTTL   time.Duration
	limiter      *keyLimiter
	tokens       *TokenIssuer
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time

	mu         sync.Mutex
	principals map[string]*principal
	pending    map[string]*Challenge
	revoked    map[string]time.Time
}

// New returns a service that verifies signatures with verifier. The binding
// is initialized if it is not already.
func New(verifier *crypto.Binding, opts ...Option) (*Service, error) {
	if verifier == nil {
		return nil, errors.New("idservice: verifier binding is required")
	}
	if err := verifier.Init(); err != nil {
		return nil, fmt.Errorf("idservice: %w", err)
	}

	cfg := &config{
		challengeTTL: DefaultChallengeTTL,
		sessionTTL:   DefaultSessionTTL,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	} else {
		logger = slog.New(privacylog.WrapHandler(logger.Handler()))
	}

	tokens := cfg.tokens
	if tokens == nil {
		var err error
		if tokens, err = GenerateTokenIssuer(DefaultIssuer); err != nil {
			return nil, fmt.Errorf("idservice: %w", err)
		}
	}

	s := &Service{
		binding:      verifier,
		challengeTTL: cfg.challengeTTL,
		sessionTTL:   cfg.sessionTTL,
		limiter:      newKeyLimiter(cfg.rps, cfg.burst, 0),
		tokens:       tokens,
		metrics:      cfg.metrics,
		logger:       logger,
		now:          cfg.clock,
		principals:   make(map[string]*principal),
		pending:      make(map[string]*Challenge),
		revoked:      make(map[string]time.Time),
	}
	s.metrics.watchPrincipals(s.count)
	return s, nil
}

// Algorithm returns the signature scheme the service verifies.
func (s *Service) Algorithm() string {
	return s.binding.SignatureScheme()
}

// Tokens returns the session token issuer.
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

func (s *Service) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.principals)
}

// Register records publicKey for principalID. An empty algorithm means the
// service's own. Resubmitting the registered key and algorithm succeeds, so a
// client may retry after losing the response; a different key is ErrDuplicate.
func (s *Service) Register(principalID string, publicKey []byte, algorithm string) error {
	if err := validatePrincipal(principalID); err != nil {
		s.metrics.registration("invalid")
		return err
	}
	if algorithm == "" {
		algorithm = s.Algorithm()
	}
	if algorithm != s.Algorithm() {
		s.metrics.registration("invalid")
		return fmt.Errorf("%w: algorithm %q not supported, want %q", ErrInvalidRequest, algorithm, s.Algorithm())
	}
	if want := s.binding.Sizes().SignaturePublicKey; len(publicKey) != want {
		s.metrics.registration("invalid")
		return fmt.Errorf("%w: public key is %d bytes, want %d", ErrInvalidRequest, len(publicKey), want)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.principals[principalID]; ok {
		if p.algorithm == algorithm && subtle.ConstantTimeCompare(p.publicKey, publicKey) == 1 {
			s.metrics.registration("accepted")
			s.logger.Debug("registration resubmitted", "principal_id", principalID)
			return nil
		}
		s.metrics.registration("duplicate")
		return ErrDuplicate
	}
	s.principals[principalID] = &principal{
		publicKey:    append([]byte(nil), publicKey...),
		algorithm:    algorithm,
		registeredAt: s.now(),
	}
	s.metrics.registration("accepted")
	s.logger.Info("principal registered", "principal_id", principalID, "algorithm", algorithm)
	return nil
}

// IssueChallenge creates a fresh challenge for principalID, replacing any
// pending one.
func (s *Service) IssueChallenge(principalID string) (*Challenge, error) {
	if err := validatePrincipal(principalID); err != nil {
		s.metrics.challenge("invalid")
		return nil, err
	}
	now := s.now()
	if !s.limiter.allow(principalID, now) {
		s.metrics.challenge("rate_limited")
		s.logger.Warn("challenge rate limited", "principal_id", principalID)
		return nil, ErrRateLimited
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[principalID]; !ok {
		s.metrics.challenge("unknown_principal")
		return nil, ErrUnknownPrincipal
	}
	c := &Challenge{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		Nonce:       nonce,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.challengeTTL),
	}
	if _, replaced := s.pending[principalID]; replaced {
		s.logger.Debug("pending challenge replaced", "principal_id", principalID)
	}
	s.pending[principalID] = c
	s.metrics.challenge("issued")

	out := *c
	out.Nonce = append([]byte(nil), nonce...)
	return &out, nil
}

// Verify checks signature over the pending challenge of principalID. A
// request naming the pending challenge consumes it before any other check,
// so a challenge is answered at most once whatever the outcome. A request
// naming any other challenge is denied and leaves the pending one in place.
func (s *Service) Verify(principalID, challengeID string, signature []byte) (*Verdict, error) {
	if err := validatePrincipal(principalID); err != nil {
		s.metrics.verification("invalid")
		return nil, err
	}

	now := s.now()
	s.mu.Lock()
	p, known := s.principals[principalID]
	c, pending := s.pending[principalID]
	if pending && c.ID == challengeID {
		delete(s.pending, principalID)
	}
	s.mu.Unlock()

	deny := func(reason string) (*Verdict, error) {
		s.metrics.verification("denied")
		s.logger.Info("verification denied", "principal_id", principalID, "reason", reason)
		return &Verdict{Reason: reason}, nil
	}
	switch {
	case !known:
		return deny(ReasonUnknownPrincipal)
	case !pending || c.ID != challengeID:
		return deny(ReasonNoChallenge)
	case !now.Before(c.ExpiresAt):
		return deny(ReasonChallengeExpired)
	}
	if err := s.binding.Verify(p.publicKey, c.Nonce, signature); err != nil {
		return deny(ReasonBadSignature)
	}

	expires := now.Add(s.sessionTTL)
	token, _, err := s.tokens.Issue(principalID, p.algorithm, now, expires)
	if err != nil {
		s.metrics.verification("error")
		return nil, err
	}
	s.metrics.verification("verified")
	s.logger.Info("principal verified", "principal_id", principalID, "expires_at", expires)
	return &Verdict{Verified: true, SessionToken: token, ExpiresAt: expires}, nil
}

// ValidateToken checks a session token issued by this service and not
// revoked.
func (s *Service) ValidateToken(token string) (*TokenClaims, error) {
	now := s.now()
	claims, err := s.tokens.Parse(token, now)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[claims.SessionID]; ok {
		return nil, fmt.Errorf("%w: session revoked", ErrInvalidToken)
	}
	if _, ok := s.principals[claims.PrincipalID]; !ok {
		return nil, fmt.Errorf("%w: principal no longer registered", ErrInvalidToken)
	}
	return claims, nil
}

// RevokeToken invalidates a session token before it expires.
func (s *Service) RevokeToken(token string) error {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[claims.SessionID] = claims.ExpiresAt
	now := s.now()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	s.logger.Info("session revoked", "principal_id", claims.PrincipalID)
	return nil
}

// Unregister removes principalID and any pending challenge.
func (s *Service) Unregister(principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[principalID]; !ok {
		return ErrUnknownPrincipal
	}
	delete(s.principals, principalID)
	delete(s.pending, principalID)
	s.logger.Info("principal removed", "principal_id", principalID)
	return nil
}

func validatePrincipal(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty principal id", ErrInvalidRequest)
	}
	if len(id) > maxPrincipalLen {
		return fmt.Errorf("%w: principal id longer than %d bytes", ErrInvalidRequest, maxPrincipalLen)
	}
	return nil
}
