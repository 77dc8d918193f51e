package idservice

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pqportal/client-go/internal/api"
	"github.com/pqportal/client-go/internal/crypto"
)

func newTestServer(t *testing.T, opts ...Option) (*Service, *crypto.Binding, *httptest.Server) {
	t.Helper()
	svc, b := newTestService(t, opts...)
	server := httptest.NewServer(svc.Handler())
	t.Cleanup(server.Close)
	return svc, b, server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return v
}

func TestHandler_FullFlow(t *testing.T) {
	_, b, server := newTestServer(t)
	kp, err := b.GenerateKeypair(crypto.SchemeSignature)
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}

	resp := postJSON(t, server.URL+"/v1/register", api.RegisterRequest{
		PrincipalID: "alice",
		PublicKey:   crypto.ToBase64URL(kp.PublicKey),
		Algorithm:   crypto.DefaultSignatureScheme,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("response should carry X-Request-Id")
	}

	resp = postJSON(t, server.URL+"/v1/challenge", api.ChallengeRequest{PrincipalID: "alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("challenge status = %d, want 200", resp.StatusCode)
	}
	ch := decode[api.ChallengeResponse](t, resp)
	nonce, err := crypto.FromBase64URL(ch.Nonce)
	if err != nil {
		t.Fatalf("nonce decode error = %v", err)
	}
	sig, err := b.Sign(kp.SecretKey, nonce)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	resp = postJSON(t, server.URL+"/v1/verify", api.VerifyRequest{
		PrincipalID: "alice",
		ChallengeID: ch.ChallengeID,
		Signature:   crypto.ToBase64URL(sig),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d, want 200", resp.StatusCode)
	}
	verdict := decode[api.VerifyResponse](t, resp)
	if verdict.Status != api.StatusVerified || verdict.Verified == nil || !*verdict.Verified {
		t.Fatalf("verdict = %+v, want verified", verdict)
	}
	if verdict.SessionToken == "" || verdict.ExpiresAt == nil {
		t.Errorf("verdict = %+v, want token and expiry", verdict)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+verdict.SessionToken)
	sresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /v1/session error = %v", err)
	}
	defer sresp.Body.Close()
	if sresp.StatusCode != http.StatusOK {
		t.Fatalf("session status = %d, want 200", sresp.StatusCode)
	}
	if got := decode[api.SessionResponse](t, sresp); got.PrincipalID != "alice" {
		t.Errorf("session principal = %q, want alice", got.PrincipalID)
	}

	req, _ = http.NewRequest(http.MethodDelete, server.URL+"/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+verdict.SessionToken)
	dresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /v1/session error = %v", err)
	}
	dresp.Body.Close()
	if dresp.StatusCode != http.StatusNoContent {
		t.Errorf("revoke status = %d, want 204", dresp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, server.URL+"/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+verdict.SessionToken)
	sresp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /v1/session error = %v", err)
	}
	sresp2.Body.Close()
	if sresp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("revoked session status = %d, want 401", sresp2.StatusCode)
	}
}

func TestHandler_Errors(t *testing.T) {
	_, b, server := newTestServer(t, WithRateLimit(0.001, 1))
	kp, err := b.GenerateKeypair(crypto.SchemeSignature)
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}
	other, err := b.GenerateKeypair(crypto.SchemeSignature)
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}
	reg := api.RegisterRequest{PrincipalID: "alice", PublicKey: crypto.ToBase64URL(kp.PublicKey)}
	if resp := postJSON(t, server.URL+"/v1/register", reg); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	// A lost response is recovered by resubmitting the same key.
	if resp := postJSON(t, server.URL+"/v1/register", reg); resp.StatusCode != http.StatusCreated {
		t.Fatalf("resubmitted register status = %d", resp.StatusCode)
	}
	dup := api.RegisterRequest{PrincipalID: "alice", PublicKey: crypto.ToBase64URL(other.PublicKey)}
	if resp := postJSON(t, server.URL+"/v1/challenge", api.ChallengeRequest{PrincipalID: "alice"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("challenge status = %d", resp.StatusCode)
	}

	tests := []struct {
		name     string
		path     string
		body     any
		status   int
		wantCode string
	}{
		{"duplicate", "/v1/register", dup, http.StatusConflict, api.CodeDuplicate},
		{"bad key encoding", "/v1/register", api.RegisterRequest{PrincipalID: "bob", PublicKey: "%%%"}, http.StatusBadRequest, api.CodeInvalidRequest},
		{"short key", "/v1/register", api.RegisterRequest{PrincipalID: "bob", PublicKey: "AAAA"}, http.StatusBadRequest, api.CodeInvalidRequest},
		{"unknown principal", "/v1/challenge", api.ChallengeRequest{PrincipalID: "ghost"}, http.StatusNotFound, api.CodeUnknownPrincipal},
		{"rate limited", "/v1/challenge", api.ChallengeRequest{PrincipalID: "alice"}, http.StatusTooManyRequests, api.CodeRateLimited},
		{"unknown field", "/v1/challenge", map[string]string{"principal": "alice"}, http.StatusBadRequest, api.CodeInvalidRequest},
		{"empty principal", "/v1/verify", api.VerifyRequest{Signature: "AAAA"}, http.StatusBadRequest, api.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, server.URL+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			e := decode[api.ErrorResponse](t, resp)
			if e.Error != tt.wantCode {
				t.Errorf("error code = %q, want %q", e.Error, tt.wantCode)
			}
			if e.RequestID == "" {
				t.Error("error body should carry request_id")
			}
		})
	}
}

func TestHandler_DeniedVerdict(t *testing.T) {
	_, _, server := newTestServer(t)
	resp := postJSON(t, server.URL+"/v1/verify", api.VerifyRequest{PrincipalID: "ghost", ChallengeID: "c", Signature: "AAAA"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	v := decode[api.VerifyResponse](t, resp)
	if v.Status != api.StatusDenied || v.Verified == nil || *v.Verified || v.SessionToken != "" {
		t.Errorf("verdict = %+v, want explicit denial", v)
	}
}

func TestHandler_MalformedBody(t *testing.T) {
	_, _, server := newTestServer(t)
	resp, err := http.Post(server.URL+"/v1/register", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	_, _, server := newTestServer(t)
	resp, err := http.Get(server.URL + "/v1/register")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestHandler_Health(t *testing.T) {
	_, _, server := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer resp.Body.Close()
	h := decode[api.HealthResponse](t, resp)
	if h.Status != "ok" || h.SignatureAlgorithm != crypto.DefaultSignatureScheme {
		t.Errorf("health = %+v", h)
	}
}

func TestHandler_Metrics(t *testing.T) {
	_, b, server := newTestServer(t, WithMetrics(NewMetrics()))
	kp, err := b.GenerateKeypair(crypto.SchemeSignature)
	if err != nil {
		t.Fatalf("GenerateKeypair() error = %v", err)
	}
	postJSON(t, server.URL+"/v1/register", api.RegisterRequest{PrincipalID: "alice", PublicKey: crypto.ToBase64URL(kp.PublicKey)})
	postJSON(t, server.URL+"/v1/challenge", api.ChallengeRequest{PrincipalID: "ghost"})

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := string(body)

	for _, want := range []string{
		`pqportal_identity_registrations_total{result="accepted"} 1`,
		`pqportal_identity_challenges_total{result="unknown_principal"} 1`,
		`pqportal_identity_principals 1`,
		`pqportal_identity_request_duration_seconds_count{code="201",route="register"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestHandler_NoMetricsRoute(t *testing.T) {
	_, _, server := newTestServer(t)
	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
