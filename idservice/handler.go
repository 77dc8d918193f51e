package idservice

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pqportal/client-go/internal/api"
	"github.com/pqportal/client-go/internal/crypto"
)

const maxBodySize = 64 << 10

// Handler returns the HTTP API:
//
//	POST   /v1/register   register a public key
//	POST   /v1/challenge  issue a challenge
//	POST   /v1/verify     verify a signed challenge
//	GET    /v1/session    introspect a bearer session token
//	DELETE /v1/session    revoke a bearer session token
//	GET    /healthz       liveness and bound algorithm
//	GET    /metrics       Prometheus metrics, when configured
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/register", s.instrument("register", s.handleRegister))
	mux.HandleFunc("POST /v1/challenge", s.instrument("challenge", s.handleChallenge))
	mux.HandleFunc("POST /v1/verify", s.instrument("verify", s.handleVerify))
	mux.HandleFunc("GET /v1/session", s.instrument("session", s.handleSession))
	mux.HandleFunc("DELETE /v1/session", s.instrument("revoke", s.handleRevoke))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Service) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("handler panic", "route", route, "request_id", reqID, "panic", v)
				writeError(rec, http.StatusInternalServerError, api.CodeInternal, "internal error")
			}
			s.metrics.observe(route, rec.code, start)
			s.logger.Debug("request", "route", route, "code", rec.code, "request_id", reqID, "duration", time.Since(start))
		}()
		h(rec, r)
	}
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pub, err := crypto.DecodeBase64(req.PublicKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "public_key is not base64")
		return
	}
	if err := s.Register(req.PrincipalID, pub, req.Algorithm); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.RegisterResponse{Status: api.StatusAccepted})
}

func (s *Service) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req api.ChallengeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := s.IssueChallenge(req.PrincipalID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ChallengeResponse{
		ChallengeID: c.ID,
		PrincipalID: c.PrincipalID,
		Nonce:       crypto.ToBase64URL(c.Nonce),
		IssuedAt:    c.IssuedAt,
		ExpiresAt:   c.ExpiresAt,
	})
}

func (s *Service) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sig, err := crypto.DecodeBase64(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "signature is not base64")
		return
	}
	v, err := s.Verify(req.PrincipalID, req.ChallengeID, sig)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := api.VerifyResponse{Status: api.StatusDenied, Verified: &v.Verified, Reason: v.Reason}
	if v.Verified {
		resp.Status = api.StatusVerified
		resp.SessionToken = v.SessionToken
		resp.ExpiresAt = &v.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleSession(w http.ResponseWriter, r *http.Request) {
	claims, err := s.ValidateToken(bearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "session token is not valid")
		return
	}
	writeJSON(w, http.StatusOK, api.SessionResponse{
		PrincipalID: claims.PrincipalID,
		Algorithm:   claims.Algorithm,
		ExpiresAt:   claims.ExpiresAt,
	})
}

func (s *Service) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := s.RevokeToken(bearerToken(r)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "session token is not valid")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", SignatureAlgorithm: s.Algorithm()})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "malformed JSON body")
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicate):
		writeError(w, http.StatusConflict, api.CodeDuplicate, err.Error())
	case errors.Is(err, ErrUnknownPrincipal):
		writeError(w, http.StatusNotFound, api.CodeUnknownPrincipal, err.Error())
	case errors.Is(err, ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, api.CodeRateLimited, err.Error())
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, api.CodeInternal, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, api.ErrorResponse{
		Error:     code,
		Message:   msg,
		RequestID: w.Header().Get("X-Request-Id"),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
