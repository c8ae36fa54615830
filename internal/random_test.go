package internal

import (
	"encoding/base64"
	"testing"
)

func TestNewOpaqueTokenIsUniqueAndDecodable(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		token, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("NewOpaqueToken failed: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil || len(raw) != opaqueTokenSize {
			t.Fatalf("unexpected token encoding %q: %v", token, err)
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = struct{}{}
	}
}

func TestNewOTPDigits(t *testing.T) {
	code, err := NewOTP(6)
	if err != nil {
		t.Fatalf("NewOTP failed: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("non-digit in %q", code)
		}
	}

	if _, err := NewOTP(2); err == nil {
		t.Fatal("expected short otp length to be rejected")
	}
}

func TestHashSecret(t *testing.T) {
	a := HashSecret("123456")
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
	if !EqualHash(a, HashSecret("123456")) {
		t.Fatal("expected equal hashes for equal input")
	}
	if EqualHash(a, HashSecret("654321")) {
		t.Fatal("expected different hashes for different input")
	}
}
