package privacylog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

type secretValue struct{}

func (secretValue) LogValue() slog.Value {
	return slog.GroupValue(slog.String("secret", "hunter2"), slog.Int("len", 7))
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	return m
}

func TestHandler_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug, "json")

	logger.Info("verify",
		"session_token", "eyJhbGciOi...",
		"signature", []byte{1, 2, 3},
		"passphrase", "pw",
		"status", "verified",
	)

	m := decodeLine(t, &buf)
	for _, key := range []string{"session_token", "signature", "passphrase"} {
		if m[key] != redactedValue {
			t.Errorf("%s = %v, want %s", key, m[key], redactedValue)
		}
	}
	if m["status"] != "verified" {
		t.Errorf("status = %v, want verified", m["status"])
	}
}

func TestHandler_FingerprintsPrincipal(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, "json")
	logger.Info("login", "principal_id", "alice")

	m := decodeLine(t, &buf)
	if _, ok := m["principal_id"]; ok {
		t.Error("principal_id logged in plain text")
	}
	fp, _ := m["principal_id_fp"].(string)
	if fp != FingerprintID("alice") || !strings.HasPrefix(fp, "fp_") {
		t.Errorf("principal_id_fp = %q", fp)
	}
	if FingerprintID("alice") == FingerprintID("bob") {
		t.Error("different principals share a fingerprint")
	}
	if FingerprintID("  ") != "" {
		t.Error("blank id fingerprinted")
	}
}

func TestHandler_ByteSlicesAndValuers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, "json")
	logger.Info("kem", "ciphertext", make([]byte, 1088), "handle", secretValue{})

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("LogValuer secret leaked: %s", out)
	}
	m := decodeLine(t, &buf)
	if m["ciphertext"] != "[1088 bytes]" {
		t.Errorf("ciphertext = %v", m["ciphertext"])
	}
	group, _ := m["handle"].(map[string]any)
	if group["secret"] != redactedValue || group["len"] != float64(7) {
		t.Errorf("handle = %v", m["handle"])
	}
}

func TestHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, "json").
		With("principal_id", "alice", "token", "t").
		WithGroup("flow")
	logger.Info("state", "state", "signing")

	out := buf.String()
	if strings.Contains(out, `"alice"`) || strings.Contains(out, `"t"`) {
		t.Errorf("WithAttrs leaked values: %s", out)
	}
	if !strings.Contains(out, `"flow":{"state":"signing"}`) {
		t.Errorf("group missing: %s", out)
	}
}

func TestWrapHandler(t *testing.T) {
	if WrapHandler(nil) != nil {
		t.Error("WrapHandler(nil) != nil")
	}
	h := WrapHandler(slog.DiscardHandler)
	if WrapHandler(h) != h {
		t.Error("WrapHandler double-wrapped")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
