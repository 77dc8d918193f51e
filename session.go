package pqportal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionStatus is the lifecycle state of a Session.
type SessionStatus int

const (
	SessionActive SessionStatus = iota + 1
	SessionExpired
	SessionRevoked
)

func (s SessionStatus) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionExpired:
		return "expired"
	case SessionRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Session is the authenticated state established by a verified login.
// The service token is never included in any rendering of the session.
type Session struct {
	PrincipalID   string
	EstablishedAt time.Time
	ExpiresAt     time.Time

	now func() time.Time

	mu     sync.Mutex
	status SessionStatus
	token  string
}

func newSession(principalID, token string, establishedAt, expiresAt time.Time, now func() time.Time) *Session {
	return &Session{
		PrincipalID:   principalID,
		EstablishedAt: establishedAt,
		ExpiresAt:     expiresAt,
		now:           now,
		status:        SessionActive,
		token:         token,
	}
}

// Status returns the session status, expiring it if its lifetime has passed.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == SessionActive && !s.now().Before(s.ExpiresAt) {
		s.status = SessionExpired
		s.token = ""
	}
	return s.status
}

// Active reports whether the session is still usable.
func (s *Session) Active() bool {
	return s.Status() == SessionActive
}

// Token returns the identity service's session token, or "" once the session
// is no longer active.
func (s *Session) Token() string {
	if !s.Active() {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == SessionActive {
		s.status = SessionRevoked
	}
	s.token = ""
}

func (s *Session) String() string {
	return "Session{" + s.PrincipalID + " " + s.Status().String() + " until " + s.ExpiresAt.Format(time.RFC3339) + "}"
}

func (s *Session) GoString() string { return s.String() }

func (s *Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("principal_id", s.PrincipalID),
		slog.String("status", s.Status().String()),
		slog.Time("expires_at", s.ExpiresAt),
	)
}

// sessionExpiry picks the session expiry: the verdict's own expiry, else the
// token's exp claim, else now+ttl.
func sessionExpiry(v *Verdict, now time.Time, ttl time.Duration) time.Time {
	if !v.ExpiresAt.IsZero() {
		return v.ExpiresAt
	}
	if exp, ok := tokenExpiry(v.SessionToken); ok {
		return exp
	}
	return now.Add(ttl)
}

// tokenExpiry reads the exp claim of a JWT without verifying it. The token
// came from the service the client just authenticated with and is only used
// to size the local session lifetime.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// CurrentSession returns the active session, or nil if there is none or it
// has expired or been revoked.
func (c *Client) CurrentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	if !c.session.Active() {
		c.logger.Info("session ended", "principal_id", c.session.PrincipalID, "status", c.session.Status().String())
		c.session = nil
		return nil
	}
	return c.session
}

// Logout ends the current session, if any.
func (c *Client) Logout() {
	c.endSession("logout")
}

// RevokeSession marks the current session revoked, e.g. after the identity
// service reports it invalid.
func (c *Client) RevokeSession(reason string) {
	c.endSession(reason)
}

func (c *Client) endSession(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return
	}
	c.session.revoke()
	c.logger.Info("session revoked", "principal_id", c.session.PrincipalID, "reason", reason)
	c.session = nil
}

// establishSession installs s as the single active session, revoking any
// previous one.
func (c *Client) establishSession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.revoke()
		c.logger.Info("session replaced", "principal_id", c.session.PrincipalID)
	}
	c.session = s
}
