package auth

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	j := NewJWT("secret", 60, "")
	token, err := j.GenerateToken("ci")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := j.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Client != "ci" || claims.Subject != "ci" {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := NewJWT("other", 60, "").ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign secret accepted: %v", err)
	}
	if _, err := j.ParseToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage accepted: %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	t.Parallel()

	j := NewJWT("secret", 60, "")
	token, err := j.GenerateToken("ci")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	j.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := j.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestExchange(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("k3y"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	j := NewJWT("secret", 0, string(hash))
	if j.expire != 24*time.Hour {
		t.Fatalf("default expiry = %s", j.expire)
	}
	if _, err := j.Exchange("ci", "wrong"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("wrong key = %v", err)
	}
	token, err := j.Exchange("ci", "k3y")
	if err != nil || token == "" {
		t.Fatalf("Exchange = %q, %v", token, err)
	}
	if _, err := NewJWT("secret", 0, "").Exchange("ci", "k3y"); !errors.Is(err, ErrNoKey) {
		t.Fatalf("unconfigured key = %v", err)
	}
}

func TestHashKey(t *testing.T) {
	t.Parallel()

	hash, err := HashKey("k3y")
	if err != nil {
		t.Fatalf("HashKey: %v", err)
	}
	if !CheckKey("k3y", hash) || CheckKey("nope", hash) {
		t.Fatal("CheckKey disagrees with HashKey")
	}
}
