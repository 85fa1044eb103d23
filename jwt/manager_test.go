package jwt

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func testSecret() []byte {
	return bytes.Repeat([]byte("s"), 32)
}

func TestMintParseRoundTrip(t *testing.T) {
	m, err := NewManager(testSecret(), "phoneauth-test", time.Hour)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, expiresAt, err := m.Mint("user-1")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if expiresAt <= time.Now().Unix() {
		t.Fatal("expected a future expiry")
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", claims.UserID)
	}
	if claims.ExpiresAt != expiresAt {
		t.Fatalf("expiry mismatch: %d vs %d", claims.ExpiresAt, expiresAt)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	a, err := NewManager(testSecret(), "phoneauth-test", time.Hour)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	b, err := NewManager(bytes.Repeat([]byte("x"), 32), "phoneauth-test", time.Hour)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, _, err := a.Mint("user-1")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if _, err := b.Parse(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	a, err := NewManager(testSecret(), "issuer-a", time.Hour)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	b, err := NewManager(testSecret(), "issuer-b", time.Hour)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, _, err := a.Mint("user-1")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if _, err := b.Parse(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	m, err := NewManager(testSecret(), "phoneauth-test", time.Hour)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	for _, bad := range []string{"", "not.a.token", "a.b"} {
		if _, err := m.Parse(bad); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("token %q: expected ErrTokenInvalid, got %v", bad, err)
		}
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager([]byte("short"), "issuer", time.Hour); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
	if _, err := NewManager(testSecret(), "", time.Hour); err == nil {
		t.Fatal("expected empty issuer to be rejected")
	}
	if _, err := NewManager(testSecret(), "issuer", 0); err == nil {
		t.Fatal("expected zero ttl to be rejected")
	}
}

func TestMintRejectsEmptyUser(t *testing.T) {
	m, err := NewManager(testSecret(), "phoneauth-test", time.Hour)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if _, _, err := m.Mint(""); err == nil {
		t.Fatal("expected empty user id to be rejected")
	}
}
