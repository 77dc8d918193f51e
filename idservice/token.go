package idservice

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim of session tokens.
const DefaultIssuer = "pqportal-identityd"

// TokenIssuer signs and validates session tokens as EdDSA JWTs.
type TokenIssuer struct {
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
	issuer string
}

// TokenClaims are the validated claims of a session token.
type TokenClaims struct {
	PrincipalID string
	SessionID   string
	Algorithm   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// NewTokenIssuer returns an issuer signing with priv.
func NewTokenIssuer(priv ed25519.PrivateKey, issuer string) *TokenIssuer {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &TokenIssuer{
		priv:   priv,
		pub:    priv.Public().(ed25519.PublicKey),
		issuer: issuer,
	}
}

// GenerateTokenIssuer returns an issuer with a fresh Ed25519 key.
func GenerateTokenIssuer(issuer string) (*TokenIssuer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate token key: %w", err)
	}
	return NewTokenIssuer(priv, issuer), nil
}

// PublicKey returns the key that verifies issued tokens.
func (t *TokenIssuer) PublicKey() ed25519.PublicKey {
	return t.pub
}

// Issue signs a token for principalID valid from now until expiresAt.
func (t *TokenIssuer) Issue(principalID, algorithm string, now, expiresAt time.Time) (string, string, error) {
	sessionID := randomID()
	claims := jwt.MapClaims{
		"iss": t.issuer,
		"sub": principalID,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"jti": sessionID,
		"scheme": algorithm,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(t.priv)
	if err != nil {
		return "", "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, sessionID, nil
}

// Parse validates token against the issuer key, issuer name and now.
func (t *TokenIssuer) Parse(token string, now time.Time) (*TokenClaims, error) {
	tok, err := jwt.ParseWithClaims(token, jwt.MapClaims{},
		func(*jwt.Token) (any, error) { return t.pub, nil },
		jwt.WithIssuer(t.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims := tok.Claims.(jwt.MapClaims)

	out := &TokenClaims{}
	out.PrincipalID, _ = claims.GetSubject()
	out.SessionID, _ = claims["jti"].(string)
	out.Algorithm, _ = claims["scheme"].(string)
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

func randomID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
