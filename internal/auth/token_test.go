package auth

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/resumind/resumind/internal/core"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer("test-secret", time.Hour)
	token, err := issuer.Issue(42)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	userID, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}
}

func TestTokenIssuer_DefaultTTL(t *testing.T) {
	t.Parallel()

	if got := NewTokenIssuer("s", 0).TTL(); got != DefaultTokenTTL {
		t.Fatalf("expected default ttl %v, got %v", DefaultTokenTTL, got)
	}
	if got := NewTokenIssuer("s", time.Minute).TTL(); got != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", got)
	}
}

func TestTokenIssuer_RejectsBadTokens(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer("test-secret", time.Hour)

	signHS256 := func(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
		t.Helper()
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("signing test token: %v", err)
		}
		return signed
	}
	now := time.Now()

	t.Run("garbage", func(t *testing.T) {
		if _, err := issuer.Verify("not-a-token"); err == nil {
			t.Fatal("expected error for garbage token")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signHS256(t, "other-secret", jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})
		_, err := issuer.Verify(token)
		if err == nil {
			t.Fatal("expected error for wrong signature")
		}
		var de *core.DomainError
		if !errors.As(err, &de) || de.Category != core.ErrCatAuth {
			t.Fatalf("expected auth error, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		token := signHS256(t, "test-secret", jwt.RegisteredClaims{
			Subject:   "1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		})
		if _, err := issuer.Verify(token); err == nil {
			t.Fatal("expected error for expired token")
		}
	})

	t.Run("alg none", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("signing none token: %v", err)
		}
		if _, err := issuer.Verify(token); err == nil {
			t.Fatal("expected error for alg=none token")
		}
	})

	t.Run("non-numeric subject", func(t *testing.T) {
		token := signHS256(t, "test-secret", jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})
		if _, err := issuer.Verify(token); err == nil {
			t.Fatal("expected error for non-numeric subject")
		}
	})

	t.Run("non-positive subject", func(t *testing.T) {
		token := signHS256(t, "test-secret", jwt.RegisteredClaims{
			Subject:   strconv.Itoa(0),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})
		if _, err := issuer.Verify(token); err == nil {
			t.Fatal("expected error for zero subject")
		}
	})
}

func TestPassword_HashAndCheck(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("test123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "test123" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword("test123", hash) {
		t.Fatal("correct password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("wrong password accepted")
	}
	if CheckPassword("test123", "not-a-bcrypt-hash") {
		t.Fatal("garbage hash accepted")
	}
}
