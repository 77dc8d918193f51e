package pqportal

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Transport carries opaque messages between two KEM parties.
type Transport interface {
	Send(ctx context.Context, msg []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// ErrTransportClosed is returned by a closed pipe end.
var ErrTransportClosed = errors.New("transport closed")

// PipeEnd is one end of an in-memory Transport pair.
type PipeEnd struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// NewPipe returns two connected in-memory transports. A message sent on one
// end is received on the other.
func NewPipe() (*PipeEnd, *PipeEnd) {
	ab := make(chan []byte, 4)
	ba := make(chan []byte, 4)
	done := make(chan struct{})
	once := new(sync.Once)
	return &PipeEnd{in: ba, out: ab, done: done, once: once},
		&PipeEnd{in: ab, out: ba, done: done, once: once}
}

// Send queues a copy of msg for the peer.
func (p *PipeEnd) Send(ctx context.Context, msg []byte) error {
	select {
	case <-p.done:
		return ErrTransportClosed
	default:
	}
	select {
	case p.out <- append([]byte(nil), msg...):
		return nil
	case <-p.done:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits for the next message from the peer.
func (p *PipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes both ends of the pipe.
func (p *PipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// EstablishKEM runs the sender side of a KEM exchange: it encapsulates to
// recipientPublicKey, transmits only the ciphertext, and waits for the
// recipient's confirmation tag. A recipient holding a different key pair
// fails with ErrKeyConfirmationFailed.
func (c *Client) EstablishKEM(ctx context.Context, t Transport, recipientPublicKey []byte) (*SharedKey, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	ct, key, err := c.Encapsulate(recipientPublicKey)
	if err != nil {
		return nil, err
	}
	if err := t.Send(ctx, ct); err != nil {
		key.Destroy()
		return nil, fmt.Errorf("send ciphertext: %w", err)
	}
	tag, err := t.Receive(ctx)
	if err != nil {
		key.Destroy()
		return nil, fmt.Errorf("receive confirmation: %w", err)
	}
	if err := key.VerifyConfirmation(tag); err != nil {
		key.Destroy()
		c.logger.Warn("kem confirmation mismatch")
		return nil, err
	}
	c.logger.Debug("kem session established", "algorithm", c.binding.KEMScheme())
	return key, nil
}

// AcceptKEM runs the recipient side of a KEM exchange: it receives the
// ciphertext, decapsulates it with recipient's secret key and returns a
// confirmation tag to the sender.
func (c *Client) AcceptKEM(ctx context.Context, t Transport, recipient *KeyPair) (*SharedKey, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, &PrimitiveError{Op: "decapsulate", Err: ErrInvalidKeySize}
	}
	ct, err := t.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("receive ciphertext: %w", err)
	}
	key, err := c.Decapsulate(ct, recipient.SecretKey)
	if err != nil {
		return nil, err
	}
	tag, err := key.ConfirmationTag()
	if err != nil {
		key.Destroy()
		return nil, err
	}
	if err := t.Send(ctx, tag); err != nil {
		key.Destroy()
		return nil, fmt.Errorf("send confirmation: %w", err)
	}
	return key, nil
}
