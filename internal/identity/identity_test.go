package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret", nil, "")

	token, err := svc.IssueToken("user-42")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	actor, err := svc.CurrentActorID(token)
	if err != nil {
		t.Fatalf("CurrentActorID: %v", err)
	}
	if actor != "user-42" {
		t.Errorf("actor: got %q, want user-42", actor)
	}
}

func TestRejectsForeignSecret(t *testing.T) {
	issuer := NewService("secret-a", nil, "")
	verifier := NewService("secret-b", nil, "")

	token, err := issuer.IssueToken("user-1")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := verifier.CurrentActorID(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got: %v", err)
	}
}

func TestRejectsEmptyAndGarbageTokens(t *testing.T) {
	svc := NewService("test-secret", nil, "")
	for _, token := range []string{"", "not.a.jwt", "aaa"} {
		if _, err := svc.CurrentActorID(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got: %v", token, err)
		}
	}
}

func TestRejectsExpiredToken(t *testing.T) {
	svc := NewService("test-secret", nil, "")
	past := time.Now().Add(-time.Hour)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(past),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.CurrentActorID(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got: %v", err)
	}
}

func TestRejectsMissingSubject(t *testing.T) {
	svc := NewService("test-secret", nil, "")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.CurrentActorID(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for missing subject, got: %v", err)
	}
}

func TestIsPrivileged(t *testing.T) {
	svc := NewService("s", []string{" Ops@Example.com ", "admin@example.com", ""}, "")

	cases := []struct {
		actor string
		want  bool
	}{
		{"ops@example.com", true},
		{"OPS@EXAMPLE.COM", true},
		{"admin@example.com", true},
		{"user@example.com", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := svc.IsPrivileged(tc.actor); got != tc.want {
			t.Errorf("IsPrivileged(%q): got %v, want %v", tc.actor, got, tc.want)
		}
	}
}

func TestVerifyAdminKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	svc := NewService("s", nil, string(hash))

	if !svc.VerifyAdminKey("hunter2") {
		t.Error("correct key should verify")
	}
	if svc.VerifyAdminKey("wrong") {
		t.Error("wrong key must not verify")
	}

	unset := NewService("s", nil, "")
	if unset.VerifyAdminKey("hunter2") {
		t.Error("verification must fail when no hash is configured")
	}
}
