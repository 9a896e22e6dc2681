package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func mintToken(t *testing.T, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func TestInspect(t *testing.T) {
	now := time.Now().UTC()
	raw := mintToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "pay2run",
			Subject:   "pr_123",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
		ActionID:         "act_42",
		PaymentRequestID: "pr_123",
	})

	// Inspection needs no key; the platform verifies on replay.
	claims, err := Inspect(raw)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if claims.ActionID != "act_42" {
		t.Errorf("ActionID = %q; want %q", claims.ActionID, "act_42")
	}
	if claims.PaymentRequestID != "pr_123" {
		t.Errorf("PaymentRequestID = %q; want %q", claims.PaymentRequestID, "pr_123")
	}
	if claims.Issuer != "pay2run" {
		t.Errorf("Issuer = %q; want %q", claims.Issuer, "pay2run")
	}
}

func TestInspectMalformed(t *testing.T) {
	for _, raw := range []string{"", "not-a-jwt", "a.b"} {
		if _, err := Inspect(raw); !errors.Is(err, ErrMalformed) {
			t.Errorf("Inspect(%q) error = %v; want ErrMalformed", raw, err)
		}
	}
}

func TestClaimsTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	live := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(90 * time.Second)),
	}}
	if got := live.TTL(now); got != 90*time.Second {
		t.Errorf("TTL() = %v; want 90s", got)
	}
	if live.Expired(now) {
		t.Error("Expired() = true; want false")
	}

	dead := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Second)),
	}}
	if got := dead.TTL(now); got != 0 {
		t.Errorf("TTL() on expired = %v; want 0", got)
	}
	if !dead.Expired(now) {
		t.Error("Expired() = false; want true")
	}

	var forever Claims
	if got := forever.TTL(now); got != 0 {
		t.Errorf("TTL() without expiry = %v; want 0", got)
	}
	if forever.Expired(now) {
		t.Error("Expired() without expiry = true; want false")
	}
}
