package pqportal

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pqportal/client-go/internal/crypto"
)

// fakeIdentity is an in-memory IdentityService that checks signatures with a
// real binding. Hooks let tests inject failures.
type fakeIdentity struct {
	binding *Binding
	ttl     time.Duration
	now     func() time.Time

	mu         sync.Mutex
	keys       map[string][]byte
	pending    map[string]*Challenge
	registers  int
	challenges int
	verifies   int

	registerErr   func(n int) error
	challengeHook func(c *Challenge) *Challenge
	verifyHook    func(ctx context.Context) (*Verdict, error)
}

func newFakeIdentity() *fakeIdentity {
	b := crypto.NewBinding()
	if err := b.Init(); err != nil {
		panic(err)
	}
	return &fakeIdentity{
		binding: b,
		ttl:     time.Minute,
		now:     time.Now,
		keys:    make(map[string][]byte),
		pending: make(map[string]*Challenge),
	}
}

func (f *fakeIdentity) Register(ctx context.Context, principalID string, publicKey []byte, algorithm string) (RegistrationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers++
	if f.registerErr != nil {
		if err := f.registerErr(f.registers); err != nil {
			return 0, err
		}
	}
	if algorithm != f.binding.SignatureScheme() {
		return 0, &ServiceError{Op: "register", StatusCode: 400, Err: fmt.Errorf("unsupported algorithm %q", algorithm)}
	}
	if stored, ok := f.keys[principalID]; ok {
		if bytes.Equal(stored, publicKey) {
			return RegistrationAccepted, nil
		}
		return RegistrationDuplicate, nil
	}
	f.keys[principalID] = append([]byte(nil), publicKey...)
	return RegistrationAccepted, nil
}

func (f *fakeIdentity) RequestChallenge(ctx context.Context, principalID string) (*Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.challenges++
	if _, ok := f.keys[principalID]; !ok {
		return nil, &ServiceError{Op: "challenge", StatusCode: 404, Kind: ErrUnknownPrincipal}
	}
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	now := f.now()
	c := &Challenge{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		Nonce:       nonce,
		IssuedAt:    now,
		ExpiresAt:   now.Add(f.ttl),
	}
	f.pending[principalID] = c
	if f.challengeHook != nil {
		return f.challengeHook(c), nil
	}
	return c, nil
}

func (f *fakeIdentity) Verify(ctx context.Context, principalID, challengeID string, signature []byte) (*Verdict, error) {
	f.mu.Lock()
	f.verifies++
	hook := f.verifyHook
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.pending[principalID]
	delete(f.pending, principalID)
	switch {
	case !ok || c.ID != challengeID:
		return &Verdict{Status: VerdictDenied, Reason: "unknown challenge"}, nil
	case !f.now().Before(c.ExpiresAt):
		return &Verdict{Status: VerdictDenied, Reason: "challenge expired"}, nil
	}
	if err := f.binding.Verify(f.keys[principalID], c.Nonce, signature); err != nil {
		return &Verdict{Status: VerdictDenied, Reason: "bad signature"}, nil
	}
	return &Verdict{Status: VerdictVerified, SessionToken: "tok-" + challengeID}, nil
}

func (f *fakeIdentity) counts() (registers, challenges, verifies int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registers, f.challenges, f.verifies
}

func newTestClient(t testing.TB, identity IdentityService, opts ...Option) *Client {
	t.Helper()
	c, err := New(identity, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}
