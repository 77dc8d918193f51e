// Package privacylog provides a slog handler that keeps key material and
// session tokens out of logs.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

var (
	bootNonce = randomNonce()

	fingerprintKeys = map[string]struct{}{
		"principal_id": {},
		"principal":    {},
		"session_id":   {},
	}
	sensitiveKeyParts = []string{
		"secret", "token", "signature", "password", "passphrase",
		"private", "authorization", "shared_key",
	}
)

// Handler wraps another slog.Handler and sanitizes every attribute:
// sensitive keys are redacted, principal identifiers are replaced with a
// per-process fingerprint, and raw byte slices are reduced to their length.
type Handler struct {
	next slog.Handler
}

// WrapHandler returns next wrapped in a sanitizing Handler.
func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	if h, ok := next.(*Handler); ok {
		return h
	}
	return &Handler{next: next}
}

// New returns a sanitizing logger writing to w. format is "json" or "text".
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(WrapHandler(h))
}

// ParseLevel maps debug/info/warn/error to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: h.next.WithAttrs(sanitizeAttrs(attrs))}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}

// SanitizeAttr applies the redaction rules to a single attribute.
func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	lowerKey := strings.ToLower(key)
	if isSensitiveKey(lowerKey) {
		return slog.String(key, redactedValue)
	}

	value := attr.Value.Resolve()
	if _, ok := fingerprintKeys[lowerKey]; ok && value.Kind() != slog.KindGroup {
		return slog.String(fingerprintKeyName(key), FingerprintID(value.String()))
	}

	switch value.Kind() {
	case slog.KindGroup:
		return slog.Attr{Key: key, Value: slog.GroupValue(sanitizeAttrs(value.Group())...)}
	case slog.KindAny:
		if b, ok := value.Any().([]byte); ok {
			return slog.String(key, fmt.Sprintf("[%d bytes]", len(b)))
		}
	}
	return slog.Attr{Key: key, Value: value}
}

// FingerprintID returns a stable, per-process pseudonym for an identifier.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func sanitizeAttrs(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, SanitizeAttr(attr))
	}
	return out
}

func fingerprintKeyName(key string) string {
	if strings.HasSuffix(strings.ToLower(key), "_fp") {
		return key
	}
	return key + "_fp"
}

func isSensitiveKey(key string) bool {
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback_nonce"
	}
	return hex.EncodeToString(buf)
}
