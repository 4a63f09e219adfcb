package session

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/logsync/internal/common"
)

func TestOwnerID_VerifiedToken(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("user-123", []byte("super-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	got, err := New(tok, "super-secret", "").OwnerID()
	if err != nil {
		t.Fatalf("OwnerID error: %v", err)
	}
	if got != "user-123" {
		t.Fatalf("owner mismatch: got %q", got)
	}
}

func TestOwnerID_UnverifiedToken(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("user-456", []byte("server-side-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	got, err := New(tok, "", "static-owner").OwnerID()
	if err != nil {
		t.Fatalf("OwnerID error: %v", err)
	}
	if got != "user-456" {
		t.Fatalf("token must win over static owner, got %q", got)
	}
}

func TestOwnerID_Expired(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u1", []byte("secret"), -time.Second)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	for _, secret := range []string{"secret", ""} {
		_, err = New(tok, secret, "").OwnerID()
		if !errors.Is(err, common.ErrTokenExpired) {
			t.Fatalf("secret %q: expected ErrTokenExpired, got %v", secret, err)
		}
	}
}

func TestOwnerID_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u2", []byte("right-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = New(tok, "wrong-secret", "").OwnerID()
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestOwnerID_Malformed(t *testing.T) {
	t.Parallel()

	_, err := New("not.a.jwt", "", "").OwnerID()
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestOwnerID_StaticAndMissing(t *testing.T) {
	t.Parallel()

	got, err := New("", "", " owner-1 ").OwnerID()
	if err != nil || got != "owner-1" {
		t.Fatalf("static owner: %q %v", got, err)
	}

	if _, err := New("", "", "").OwnerID(); !errors.Is(err, common.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
