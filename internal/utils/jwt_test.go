package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, "a@nitc.ac.in", 15)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if time.Until(tok.Exp) <= 0 {
		t.Fatalf("expected expiry in the future, got %v", tok.Exp)
	}

	claims, err := ParseAccessToken("secret", tok.Token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != 42 {
		t.Errorf("expected user id 42, got %d (%v)", id, err)
	}
	if claims.Email != "a@nitc.ac.in" {
		t.Errorf("expected email claim, got %q", claims.Email)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	good, err := NewAccessToken("secret", 1, "a@nitc.ac.in", 15)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := NewAccessToken("secret", 1, "a@nitc.ac.in", -1)
	if err != nil {
		t.Fatal(err)
	}
	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "email": "a@nitc.ac.in"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		secret string
		raw    string
	}{
		{name: "wrong secret", secret: "other", raw: good.Token},
		{name: "expired", secret: "secret", raw: expired.Token},
		{name: "alg none", secret: "secret", raw: unsigned},
		{name: "garbage", secret: "secret", raw: "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseAccessToken(tt.secret, tt.raw); err != ErrInvalidToken {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestRefreshTokenHashing(t *testing.T) {
	a, err := NewRefreshToken(7)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewRefreshToken(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Raw) != 96 {
		t.Errorf("expected 96 hex chars, got %d", len(a.Raw))
	}
	if a.Raw == b.Raw {
		t.Error("expected distinct refresh tokens")
	}
	if HashToken(a.Raw) != HashToken(a.Raw) || len(HashToken(a.Raw)) != 64 {
		t.Error("expected stable 64 char sha256 hex digest")
	}
}

func TestPasswordHashing(t *testing.T) {
	if _, err := HashPassword("short", 4); err != ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	hash, err := HashPassword("hunter22", 4)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword(hash, "hunter22") {
		t.Error("expected password to verify")
	}
	if VerifyPassword(hash, "hunter23") {
		t.Error("expected wrong password to fail")
	}
}
