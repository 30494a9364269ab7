package auth

import (
	"errors"
	"testing"
	"time"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v, err := NewVerifier("secret")
	if err != nil {
		t.Fatal(err)
	}
	token, err := v.Issue("learner-1")
	if err != nil {
		t.Fatal(err)
	}
	user, err := v.Verify(token)
	if err != nil || user != "learner-1" {
		t.Fatalf("Verify = %q, %v", user, err)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v, _ := NewVerifier("secret")
	other, _ := NewVerifier("other")
	foreign, _ := other.Issue("learner-1")

	expired, _ := NewVerifier("secret")
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _ := expired.Issue("learner-1")

	for name, token := range map[string]string{
		"garbage":      "not-a-jwt",
		"wrong secret": foreign,
		"expired":      stale,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	if tok, err := BearerToken("Bearer abc"); err != nil || tok != "abc" {
		t.Fatalf("got %q %v", tok, err)
	}
	for _, h := range []string{"", "Bearer ", "Basic abc"} {
		if _, err := BearerToken(h); !errors.Is(err, ErrMissingToken) {
			t.Fatalf("%q: expected ErrMissingToken, got %v", h, err)
		}
	}
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	if _, err := NewVerifier(""); err == nil {
		t.Fatal("expected error")
	}
}
