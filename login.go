package pqportal

import (
	"context"
	"errors"
	"strings"

	"github.com/pqportal/client-go/internal/crypto"
)

// FlowState is the state of a principal's challenge-response flow.
type FlowState int

const (
	FlowIdle FlowState = iota
	FlowChallengeRequested
	FlowSigning
	FlowAwaitingVerification
	FlowAuthenticated
	FlowDenied
)

func (s FlowState) String() string {
	switch s {
	case FlowIdle:
		return "idle"
	case FlowChallengeRequested:
		return "challenge_requested"
	case FlowSigning:
		return "signing"
	case FlowAwaitingVerification:
		return "awaiting_verification"
	case FlowAuthenticated:
		return "authenticated"
	case FlowDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// FlowState reports the current or last flow state for principalID.
func (c *Client) FlowState(principalID string) FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flows[principalID]
}

// Login authenticates principalID: it requests a challenge, signs the exact
// nonce bytes with the stored secret key, and submits the signature.
//
// Only an explicit verified verdict establishes a session; it replaces any
// previous session. Every other outcome leaves no session and discards the
// challenge, so the next attempt needs a fresh one. Errors are a
// *ProtocolError (ErrNoLocalKey, ErrFlowAlreadyInProgress, ErrStaleChallenge,
// ErrVerificationTimeout, ErrDenied, ErrCanceled), a *KeyStoreError, a
// *PrimitiveError, or a *ServiceError.
func (c *Client) Login(ctx context.Context, principalID string) (*Session, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(principalID) == "" {
		return nil, ErrInvalidPrincipal
	}
	if !c.keys.HasKey(principalID) {
		return nil, &ProtocolError{State: c.FlowState(principalID), Err: ErrNoLocalKey}
	}
	if state, ok := c.beginFlow(principalID); !ok {
		return nil, &ProtocolError{State: state, Err: ErrFlowAlreadyInProgress}
	}
	defer c.endFlow(principalID)

	log := c.logger.With("principal_id", principalID)

	challenge, err := c.identity.RequestChallenge(ctx, principalID)
	if err != nil {
		c.setFlow(principalID, FlowIdle)
		if ctx.Err() != nil {
			return nil, &ProtocolError{State: FlowIdle, Err: errors.Join(ErrCanceled, ctx.Err())}
		}
		log.Warn("challenge request failed", "error", err)
		return nil, err
	}

	if reason := c.staleReason(principalID, challenge); reason != "" {
		c.setFlow(principalID, FlowDenied)
		log.Warn("stale challenge discarded", "reason", reason)
		return nil, &ProtocolError{State: FlowDenied, Reason: reason, Err: ErrStaleChallenge}
	}

	c.setFlow(principalID, FlowSigning)
	signature, err := c.sign(principalID, challenge.Nonce)
	if err != nil {
		c.setFlow(principalID, FlowIdle)
		log.Error("signing aborted", "error", err)
		return nil, err
	}
	defer crypto.Zeroize(signature)

	c.setFlow(principalID, FlowAwaitingVerification)
	verdict, err := c.awaitVerdict(ctx, principalID, challenge.ID, signature)
	switch {
	case ctx.Err() != nil:
		c.setFlow(principalID, FlowIdle)
		log.Info("login canceled")
		return nil, &ProtocolError{State: FlowIdle, Err: errors.Join(ErrCanceled, ctx.Err())}
	case errors.Is(err, ErrVerificationTimeout):
		c.setFlow(principalID, FlowDenied)
		log.Warn("verification timed out", "timeout", c.verificationTimeout)
		return nil, &ProtocolError{State: FlowDenied, Err: ErrVerificationTimeout}
	case err != nil:
		c.setFlow(principalID, FlowDenied)
		log.Warn("verification failed", "error", err)
		return nil, err
	case !verdict.Verified():
		c.setFlow(principalID, FlowDenied)
		reason := "no verdict"
		if verdict != nil {
			reason = verdict.Reason
		}
		log.Info("login denied", "reason", reason)
		return nil, &ProtocolError{State: FlowDenied, Reason: reason, Err: ErrDenied}
	}

	now := c.now()
	session := newSession(principalID, verdict.SessionToken, now, sessionExpiry(verdict, now, c.sessionTTL), c.now)
	c.establishSession(session)
	c.setFlow(principalID, FlowAuthenticated)
	log.Info("login succeeded", "expires_at", session.ExpiresAt)
	return session, nil
}

// staleReason returns why challenge must not be signed, or "".
func (c *Client) staleReason(principalID string, challenge *Challenge) string {
	switch {
	case challenge == nil:
		return "no challenge"
	case challenge.PrincipalID != principalID:
		return "challenge issued for another principal"
	case len(challenge.Nonce) == 0:
		return "empty nonce"
	case !challenge.ExpiresAt.IsZero() && !c.now().Before(challenge.ExpiresAt):
		return "challenge expired"
	}
	return ""
}

// sign produces a signature over nonce with the stored key. The key handle is
// destroyed before returning.
func (c *Client) sign(principalID string, nonce []byte) ([]byte, error) {
	handle, err := c.keys.Get(principalID)
	if err != nil {
		return nil, &KeyStoreError{Op: "get", PrincipalID: principalID, Err: err}
	}
	defer handle.Destroy()

	sig, err := c.binding.Sign(handle.Bytes(), nonce)
	if err != nil {
		return nil, &PrimitiveError{Op: "sign", Err: err}
	}
	return sig, nil
}

type verifyResult struct {
	verdict *Verdict
	err     error
}

// awaitVerdict submits the signature and waits at most the verification
// timeout for an answer, even if the identity service ignores ctx.
func (c *Client) awaitVerdict(ctx context.Context, principalID, challengeID string, signature []byte) (*Verdict, error) {
	vctx, cancel := context.WithTimeout(ctx, c.verificationTimeout)
	defer cancel()

	sig := append([]byte(nil), signature...)
	done := make(chan verifyResult, 1)
	go func() {
		v, err := c.identity.Verify(vctx, principalID, challengeID, sig)
		done <- verifyResult{verdict: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && vctx.Err() != nil && ctx.Err() == nil {
			return nil, ErrVerificationTimeout
		}
		return res.verdict, res.err
	case <-vctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrVerificationTimeout
	}
}

// beginFlow marks a flow in flight for principalID. It fails if one already is.
func (c *Client) beginFlow(principalID string) (FlowState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[principalID] {
		return c.flows[principalID], false
	}
	c.inFlight[principalID] = true
	c.flows[principalID] = FlowChallengeRequested
	return FlowChallengeRequested, true
}

func (c *Client) endFlow(principalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, principalID)
}

func (c *Client) setFlow(principalID string, state FlowState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flows[principalID] = state
}
