package idservice

import (
	"errors"
	"testing"
	"time"
)

func TestTokenIssuer(t *testing.T) {
	issuer, err := GenerateTokenIssuer("")
	if err != nil {
		t.Fatalf("GenerateTokenIssuer() error = %v", err)
	}
	now := time.Now().Truncate(time.Second)
	tok, sid, err := issuer.Issue("alice", "ML-DSA-65", now, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := issuer.Parse(tok, now)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.PrincipalID != "alice" || claims.SessionID != sid || claims.Algorithm != "ML-DSA-65" {
		t.Errorf("claims = %+v", claims)
	}
	if !claims.ExpiresAt.Equal(now.Add(time.Minute)) || !claims.IssuedAt.Equal(now) {
		t.Errorf("claims times = %v / %v", claims.IssuedAt, claims.ExpiresAt)
	}
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer, err := GenerateTokenIssuer("a")
	if err != nil {
		t.Fatalf("GenerateTokenIssuer() error = %v", err)
	}
	otherKey, err := GenerateTokenIssuer("a")
	if err != nil {
		t.Fatalf("GenerateTokenIssuer() error = %v", err)
	}
	otherIssuer := NewTokenIssuer(issuer.priv, "b")

	now := time.Now()
	tok, _, err := issuer.Issue("alice", "ML-DSA-65", now, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	tampered := []byte(tok)
	if i := len(tampered) - 10; tampered[i] == 'A' {
		tampered[i] = 'B'
	} else {
		tampered[i] = 'A'
	}

	tests := []struct {
		name   string
		parser *TokenIssuer
		token  string
		at     time.Time
	}{
		{"expired", issuer, tok, now.Add(2 * time.Minute)},
		{"other key", otherKey, tok, now},
		{"other issuer", otherIssuer, tok, now},
		{"garbage", issuer, "not.a.jwt", now},
		{"empty", issuer, "", now},
		{"tampered", issuer, string(tampered), now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parser.Parse(tt.token, tt.at); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}
