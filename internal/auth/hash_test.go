package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("Sup3r!secret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.Contains(hash, "$") {
		t.Errorf("expected salt$hash format, got %q", hash)
	}

	if ok, legacy := VerifyPassword("Sup3r!secret", hash); !ok || legacy {
		t.Errorf("VerifyPassword() = (%v, %v), want (true, false)", ok, legacy)
	}
	if ok, _ := VerifyPassword("wrong password", hash); ok {
		t.Error("VerifyPassword() accepted the wrong password")
	}
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	h1, err := HashPassword("Sup3r!secret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	h2, err := HashPassword("Sup3r!secret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password should not match")
	}
}

func TestHashPasswordEmpty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestVerifyPasswordLegacyHash(t *testing.T) {
	sum := sha256.Sum256([]byte("OldPass1!"))
	stored := hex.EncodeToString(sum[:])

	ok, legacy := VerifyPassword("OldPass1!", stored)
	if !ok || !legacy {
		t.Errorf("VerifyPassword() = (%v, %v), want (true, true)", ok, legacy)
	}

	if ok, _ := VerifyPassword("NotThePass1!", stored); ok {
		t.Error("legacy path accepted the wrong password")
	}
}

func TestVerifyPasswordMalformed(t *testing.T) {
	tests := []struct {
		name   string
		stored string
	}{
		{"empty", ""},
		{"garbage", "not a hash"},
		{"bad base64 salt", "???$aGFzaA"},
		{"bad base64 hash", "c2FsdA$???"},
		{"short hex", "abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ok, _ := VerifyPassword("whatever", tt.stored); ok {
				t.Errorf("VerifyPassword() accepted stored value %q", tt.stored)
			}
		})
	}
}

func TestNewSessionToken(t *testing.T) {
	t1, err := NewSessionToken()
	if err != nil {
		t.Fatalf("NewSessionToken() error = %v", err)
	}
	t2, err := NewSessionToken()
	if err != nil {
		t.Fatalf("NewSessionToken() error = %v", err)
	}
	if t1 == t2 {
		t.Error("tokens should be unique")
	}
	if len(t1) < 32 {
		t.Errorf("token too short: %d chars", len(t1))
	}
}
