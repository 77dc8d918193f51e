package keystore

import (
	"encoding/json"
	"log/slog"
	"sync"
)

const redacted = "[REDACTED]"

// SecretKeyHandle is a principal-scoped reference to a copy of a stored
// secret key. Every rendering path (fmt verbs, slog, JSON, text) yields a
// redaction marker instead of the bytes.
type SecretKeyHandle struct {
	principalID string

	mu        sync.Mutex
	secret    []byte
	destroyed bool
}

func newHandle(principalID string, secret []byte) *SecretKeyHandle {
	return &SecretKeyHandle{principalID: principalID, secret: secret}
}

// PrincipalID returns the principal the key belongs to.
func (h *SecretKeyHandle) PrincipalID() string {
	return h.principalID
}

// Len returns the key length, or 0 once destroyed.
func (h *SecretKeyHandle) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.secret)
}

// Bytes exposes the key for passing to the primitive binding. The slice is
// owned by the handle and is zeroed by Destroy; it must not be retained.
func (h *SecretKeyHandle) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.secret
}

// Destroyed reports whether Destroy has been called.
func (h *SecretKeyHandle) Destroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

// Destroy zeroes the key bytes. It is safe to call more than once.
func (h *SecretKeyHandle) Destroy() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	zero(h.secret)
	h.secret = nil
	h.destroyed = true
}

func (h *SecretKeyHandle) String() string {
	return "SecretKeyHandle{" + h.principalID + " " + redacted + "}"
}

func (h *SecretKeyHandle) GoString() string {
	return h.String()
}

func (h *SecretKeyHandle) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("principal_id", h.principalID),
		slog.String("secret", redacted),
	)
}

func (h *SecretKeyHandle) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"principal_id": h.principalID,
		"secret":       redacted,
	})
}

func (h *SecretKeyHandle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}
