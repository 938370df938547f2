package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerify(t *testing.T) {
	m := NewClientTokenManager("secret", 1)
	id, tok, err := m.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != id {
		t.Errorf("expected %s, got %s", id, got)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	_, tok, _ := NewClientTokenManager("a", 1).Issue()
	if _, err := NewClientTokenManager("b", 1).Verify(tok); !errors.Is(err, ErrInvalidClientToken) {
		t.Errorf("expected ErrInvalidClientToken, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	m := NewClientTokenManager("secret", 1)
	base := time.Now()
	m.now = func() time.Time { return base.Add(-2 * time.Hour) }
	_, tok, _ := m.Issue()

	m.now = func() time.Time { return base }
	if _, err := m.Verify(tok); !errors.Is(err, ErrInvalidClientToken) {
		t.Errorf("expected expired token to be rejected, got %v", err)
	}
}

func TestVerify_RejectsNonUUIDClientID(t *testing.T) {
	m := NewClientTokenManager("secret", 1)
	tok, _ := m.Sign("../../etc")
	if _, err := m.Verify(tok); !errors.Is(err, ErrInvalidClientToken) {
		t.Errorf("expected rejection, got %v", err)
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	claims := ClientClaims{ClientID: "5f0c3f5e-7c55-4a51-9b8c-7a0d7bb0a0a1"}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewClientTokenManager("secret", 1).Verify(tok); err == nil {
		t.Error("expected unsigned token to be rejected")
	}
}
